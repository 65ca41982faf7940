package validation

import (
	"fmt"

	"github.com/lumilearn/content-pipeline/internal/content"
)

// Dialogue emotions and scene interaction triggers accepted by the renderer.
var (
	dialogueEmotions    = []string{"neutral", "happy", "sad", "angry", "surprised", "thinking"}
	interactionTriggers = []string{"click", "hover", "drag", "timer"}
)

// checkQuiz validates a quiz payload and returns its sanitized form.
func (e *Engine) checkQuiz(p content.QuizContent, rep *report) content.Payload {
	e.titleField(rep, "title", p.Title)

	if len(p.Questions) == 0 {
		rep.failf(KindMissing, "questions", "quiz has no questions", "add at least one question")
		return sanitizeQuiz(p)
	}
	if len(p.Questions) > e.budgets.MaxQuestions {
		rep.fail(KindSizeExceeded, "questions",
			fmt.Sprintf("%d questions exceed the budget of %d", len(p.Questions), e.budgets.MaxQuestions))
		return sanitizeQuiz(p)
	}

	seen := make(map[string]int, len(p.Questions))
	for i, q := range p.Questions {
		path := fmt.Sprintf("questions[%d]", i)

		e.idField(rep, path+".id", q.ID)
		if q.ID != "" {
			if prev, dup := seen[q.ID]; dup {
				rep.fail(KindReference, path+".id",
					fmt.Sprintf("question id %q already used by questions[%d]", q.ID, prev))
			} else {
				seen[q.ID] = i
			}
		}

		e.textField(rep, path+".prompt", q.Prompt, e.budgets.MaxTextLen)
		e.optionalText(rep, path+".explanation", q.Explanation, e.budgets.MaxTextLen)
		e.checkQuizOptions(path, q.Options, rep)
	}

	return sanitizeQuiz(p)
}

// checkQuizOptions enforces option count bounds and the at-least-one-correct
// rule for a single question.
func (e *Engine) checkQuizOptions(path string, options []content.QuizOption, rep *report) {
	if len(options) == 0 {
		rep.failf(KindMissing, path+".options", "question has no answer options",
			fmt.Sprintf("add at least %d options", e.budgets.MinOptions))
		return
	}
	if len(options) > e.budgets.MaxOptions {
		rep.fail(KindSizeExceeded, path+".options",
			fmt.Sprintf("%d options exceed the budget of %d", len(options), e.budgets.MaxOptions))
		return
	}
	if len(options) < e.budgets.MinOptions {
		rep.quality(KindInvalidValue, path+".options",
			fmt.Sprintf("question has %d options, expected at least %d", len(options), e.budgets.MinOptions),
			"add more answer options")
	}

	correct := 0
	for j, opt := range options {
		optPath := fmt.Sprintf("%s.options[%d]", path, j)
		e.idField(rep, optPath+".id", opt.ID)
		e.textField(rep, optPath+".text", opt.Text, e.budgets.MaxTextLen)
		if opt.Correct {
			correct++
		}
	}
	if correct == 0 {
		rep.quality(KindInvalidValue, path+".options",
			"no option is marked correct", "mark at least one option as correct")
	}
}

// checkDialogue validates a dialogue payload: declared speakers, resolvable
// speaker references on every line, and per-line text.
func (e *Engine) checkDialogue(p content.DialogueContent, rep *report) content.Payload {
	e.titleField(rep, "title", p.Title)

	if len(p.Speakers) == 0 {
		rep.failf(KindMissing, "speakers", "dialogue declares no speakers", "declare the participating speakers")
	}
	if len(p.Speakers) > e.budgets.MaxSpeakers {
		rep.fail(KindSizeExceeded, "speakers",
			fmt.Sprintf("%d speakers exceed the budget of %d", len(p.Speakers), e.budgets.MaxSpeakers))
	}

	declared := make(map[string]int, len(p.Speakers))
	for i, sp := range p.Speakers {
		path := fmt.Sprintf("speakers[%d]", i)
		e.idField(rep, path+".id", sp.ID)
		e.textField(rep, path+".name", sp.Name, e.budgets.MaxTitleLen)
		if sp.ID != "" {
			if prev, dup := declared[sp.ID]; dup {
				rep.fail(KindReference, path+".id",
					fmt.Sprintf("speaker id %q already used by speakers[%d]", sp.ID, prev))
			} else {
				declared[sp.ID] = i
			}
		}
	}

	if len(p.Lines) == 0 {
		rep.failf(KindMissing, "lines", "dialogue has no lines", "add at least one line")
	}
	if len(p.Lines) > e.budgets.MaxLines {
		rep.fail(KindSizeExceeded, "lines",
			fmt.Sprintf("%d lines exceed the budget of %d", len(p.Lines), e.budgets.MaxLines))
		return sanitizeDialogue(p)
	}

	for i, line := range p.Lines {
		path := fmt.Sprintf("lines[%d]", i)
		if line.Speaker == "" {
			rep.fail(KindMissing, path+".speaker", "line has no speaker")
		} else if _, ok := declared[line.Speaker]; !ok {
			rep.failf(KindReference, path+".speaker",
				fmt.Sprintf("speaker %q is not declared", line.Speaker),
				"declare the speaker or fix the reference")
		}
		e.textField(rep, path+".text", line.Text, e.budgets.MaxTextLen)
		enumField(rep, path+".emotion", line.Emotion, dialogueEmotions...)
	}

	return sanitizeDialogue(p)
}

// checkScene validates a scene payload: entities on the 0-100 grid and
// interactions bound to declared entities.
func (e *Engine) checkScene(p content.SceneContent, rep *report) content.Payload {
	e.titleField(rep, "title", p.Title)
	e.optionalText(rep, "background", p.Background, e.budgets.MaxTitleLen)

	if len(p.Entities) == 0 {
		rep.failf(KindMissing, "entities", "scene has no entities", "place at least one entity")
	}
	if len(p.Entities) > e.budgets.MaxSceneEntities {
		rep.fail(KindSizeExceeded, "entities",
			fmt.Sprintf("%d entities exceed the budget of %d", len(p.Entities), e.budgets.MaxSceneEntities))
		return sanitizeScene(p)
	}

	declared := make(map[string]int, len(p.Entities))
	for i, ent := range p.Entities {
		path := fmt.Sprintf("entities[%d]", i)
		e.idField(rep, path+".id", ent.ID)
		if ent.ID != "" {
			if prev, dup := declared[ent.ID]; dup {
				rep.fail(KindReference, path+".id",
					fmt.Sprintf("entity id %q already used by entities[%d]", ent.ID, prev))
			} else {
				declared[ent.ID] = i
			}
		}
		if ent.Kind == "" {
			rep.fail(KindMissing, path+".kind", "entity kind is required")
		}
		e.textField(rep, path+".label", ent.Label, e.budgets.MaxTitleLen)
		if ent.X < 0 || ent.X > 100 {
			rep.fail(KindInvalidValue, path+".x", fmt.Sprintf("x position %.2f is outside the 0-100 grid", ent.X))
		}
		if ent.Y < 0 || ent.Y > 100 {
			rep.fail(KindInvalidValue, path+".y", fmt.Sprintf("y position %.2f is outside the 0-100 grid", ent.Y))
		}
	}

	if len(p.Interactions) > e.budgets.MaxInteractions {
		rep.fail(KindSizeExceeded, "interactions",
			fmt.Sprintf("%d interactions exceed the budget of %d", len(p.Interactions), e.budgets.MaxInteractions))
		return sanitizeScene(p)
	}
	for i, ia := range p.Interactions {
		path := fmt.Sprintf("interactions[%d]", i)
		if ia.Trigger == "" {
			rep.fail(KindMissing, path+".trigger", "interaction trigger is required")
		} else {
			enumField(rep, path+".trigger", ia.Trigger, interactionTriggers...)
		}
		if ia.Entity == "" {
			rep.fail(KindMissing, path+".entity", "interaction target entity is required")
		} else if _, ok := declared[ia.Entity]; !ok {
			rep.failf(KindReference, path+".entity",
				fmt.Sprintf("entity %q is not declared", ia.Entity),
				"target a declared entity id")
		}
		if ia.Action == "" {
			rep.fail(KindMissing, path+".action", "interaction action is required")
		}
	}

	return sanitizeScene(p)
}

// checkGame validates a game payload: the scene graph must declare every node
// referenced by start_scene and next edges.
func (e *Engine) checkGame(p content.GameContent, rep *report) content.Payload {
	e.titleField(rep, "title", p.Title)

	if len(p.Scenes) == 0 {
		rep.failf(KindMissing, "scenes", "game has no scenes", "add at least one scene")
		return sanitizeGame(p)
	}
	if len(p.Scenes) > e.budgets.MaxScenes {
		rep.fail(KindSizeExceeded, "scenes",
			fmt.Sprintf("%d scenes exceed the budget of %d", len(p.Scenes), e.budgets.MaxScenes))
		return sanitizeGame(p)
	}

	declared := make(map[string]int, len(p.Scenes))
	for i, sc := range p.Scenes {
		path := fmt.Sprintf("scenes[%d]", i)
		e.idField(rep, path+".id", sc.ID)
		e.textField(rep, path+".title", sc.Title, e.budgets.MaxTitleLen)
		if sc.ID != "" {
			if prev, dup := declared[sc.ID]; dup {
				rep.fail(KindReference, path+".id",
					fmt.Sprintf("scene id %q already used by scenes[%d]", sc.ID, prev))
			} else {
				declared[sc.ID] = i
			}
		}
	}

	if p.StartScene == "" {
		rep.failf(KindMissing, "start_scene", "game has no entry scene", "set start_scene to a declared scene id")
	} else if _, ok := declared[p.StartScene]; !ok {
		rep.failf(KindReference, "start_scene",
			fmt.Sprintf("start scene %q is not declared", p.StartScene),
			"reference a declared scene id")
	}

	for i, sc := range p.Scenes {
		for j, next := range sc.Next {
			if _, ok := declared[next]; !ok {
				rep.fail(KindReference, fmt.Sprintf("scenes[%d].next[%d]", i, j),
					fmt.Sprintf("next scene %q is not declared", next))
			}
		}
	}

	if p.Scoring != nil {
		if p.Scoring.MaxScore <= 0 {
			rep.fail(KindInvalidValue, "scoring.max_score", "max score must be positive")
		}
		if p.Scoring.PassScore < 0 {
			rep.fail(KindInvalidValue, "scoring.pass_score", "pass score cannot be negative")
		}
		if p.Scoring.MaxScore > 0 && p.Scoring.PassScore > p.Scoring.MaxScore {
			rep.failf(KindInvalidValue, "scoring.pass_score",
				fmt.Sprintf("pass score %d exceeds max score %d", p.Scoring.PassScore, p.Scoring.MaxScore),
				"lower the pass threshold or raise the max score")
		}
	}

	return sanitizeGame(p)
}

// Sanitization produces the normalized copy handed to the optimizer: text
// trimmed, structure untouched. Unknown input fields are already gone because
// the payload was decoded into its typed form.

func sanitizeQuiz(p content.QuizContent) content.QuizContent {
	p.Title = clean(p.Title)
	for i := range p.Questions {
		q := &p.Questions[i]
		q.Prompt = clean(q.Prompt)
		q.Explanation = clean(q.Explanation)
		for j := range q.Options {
			q.Options[j].Text = clean(q.Options[j].Text)
		}
	}
	return p
}

func sanitizeDialogue(p content.DialogueContent) content.DialogueContent {
	p.Title = clean(p.Title)
	for i := range p.Speakers {
		p.Speakers[i].Name = clean(p.Speakers[i].Name)
	}
	for i := range p.Lines {
		p.Lines[i].Text = clean(p.Lines[i].Text)
	}
	return p
}

func sanitizeScene(p content.SceneContent) content.SceneContent {
	p.Title = clean(p.Title)
	p.Background = clean(p.Background)
	for i := range p.Entities {
		p.Entities[i].Label = clean(p.Entities[i].Label)
	}
	return p
}

func sanitizeGame(p content.GameContent) content.GameContent {
	p.Title = clean(p.Title)
	for i := range p.Scenes {
		p.Scenes[i].Title = clean(p.Scenes[i].Title)
	}
	return p
}
