package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_FormattingInsensitive(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "whitespace differences",
			a:    `{"title":"Fractions","questions":[]}`,
			b:    "{\n  \"title\": \"Fractions\",\n  \"questions\": []\n}",
		},
		{
			name: "key order differences",
			a:    `{"title":"Fractions","level":3}`,
			b:    `{"level":3,"title":"Fractions"}`,
		},
		{
			name: "nested key order differences",
			a:    `{"q":{"prompt":"2+2?","id":"q1"},"title":"t"}`,
			b:    `{"title":"t","q":{"id":"q1","prompt":"2+2?"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa, err := Compute(json.RawMessage(tt.a))
			require.NoError(t, err)
			fb, err := Compute(json.RawMessage(tt.b))
			require.NoError(t, err)
			assert.Equal(t, fa, fb)
		})
	}
}

func TestCompute_SemanticChangesDiverge(t *testing.T) {
	base := `{"title":"Fractions","questions":[{"id":"q1","prompt":"2+2?"}]}`
	variants := []string{
		`{"title":"fractions","questions":[{"id":"q1","prompt":"2+2?"}]}`,
		`{"title":"Fractions","questions":[{"id":"q2","prompt":"2+2?"}]}`,
		`{"title":"Fractions","questions":[]}`,
		`{"title":"Fractions","questions":[{"id":"q1","prompt":"2+2?","extra":true}]}`,
	}

	fp, err := Compute(json.RawMessage(base))
	require.NoError(t, err)

	for _, v := range variants {
		other, err := Compute(json.RawMessage(v))
		require.NoError(t, err)
		assert.NotEqual(t, fp, other, "variant %s should not collide", v)
	}
}

func TestCompute_Stable(t *testing.T) {
	raw := json.RawMessage(`{"lines":[{"speaker":"s1","text":"hi"}],"speakers":[{"id":"s1","name":"Ada"}]}`)

	first, err := Compute(raw)
	require.NoError(t, err)
	assert.Len(t, string(first), 64)

	for i := 0; i < 10; i++ {
		again, err := Compute(raw)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "sorts keys and strips whitespace",
			raw:  "{ \"b\": 1,\n \"a\": [true, null] }",
			want: `{"a":[true,null],"b":1}`,
		},
		{
			name: "preserves number literals",
			raw:  `{"ratio":0.50,"count":10000000000000001}`,
			want: `{"count":10000000000000001,"ratio":0.50}`,
		},
		{
			name: "array root",
			raw:  `[ {"z":1, "a":2} ]`,
			want: `[{"a":2,"z":1}]`,
		},
		{
			name:    "scalar root rejected",
			raw:     `"just a string"`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "invalid JSON rejected",
			raw:     `{"title": }`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "trailing data rejected",
			raw:     `{"a":1} {"b":2}`,
			wantErr: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
