package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

func fixedTime() time.Time {
	return time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC)
}

func TestSuggestAcceptsArrayAndObjectReplies(t *testing.T) {
	tests := map[string]struct {
		reply string
		want  []string
	}{
		"array": {
			reply: `["A?","B?","C?"]`,
			want:  []string{"A?", "B?", "C?"},
		},
		"object of array": {
			reply: `{"questions":["A?","B?","C?","D?"]}`,
			want:  []string{"A?", "B?", "C?", "D?"},
		},
		"object of strings keeps order": {
			reply: `{"q2":"B?","q1":"A?","q3":"C?"}`,
			want:  []string{"B?", "A?", "C?"},
		},
		"drops blanks and non-strings": {
			reply: `["A?", "", 7, null, "B?", "  ", "C?"]`,
			want:  []string{"A?", "B?", "C?"},
		},
		"truncates to five": {
			reply: `["1","2","3","4","5","6","7"]`,
			want:  []string{"1", "2", "3", "4", "5"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewSuggester(replyWith(tc.reply, nil), SuggesterConfig{}, nil)
			assert.Equal(t, tc.want, s.Suggest(context.Background(), catalog.TablesData{}))
		})
	}
}

func TestSuggestFallsBackToStaticList(t *testing.T) {
	tests := map[string]*mockModel{
		"too few":   replyWith(`["only one"]`, nil),
		"not json":  replyWith(`here are some ideas`, nil),
		"scalar":    replyWith(`"one"`, nil),
		"upstream":  replyWith("", errors.New("status=500")),
		"empty obj": replyWith(`{}`, nil),
	}
	for name, model := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewSuggester(model, SuggesterConfig{}, nil)
			got := s.Suggest(context.Background(), catalog.TransitWorkbook(fixedTime()).Tables)
			assert.Equal(t, StaticSuggestions(), got)
		})
	}
}

func TestSuggestRequestShape(t *testing.T) {
	model := &mockModel{}
	var captured Completion
	model.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(Completion) }).
		Return(`["A","B","C"]`, nil)

	s := NewSuggester(model, SuggesterConfig{Temperature: 0.8, MaxTokens: 500}, nil)
	s.Suggest(context.Background(), catalog.TablesData{})

	require.Len(t, captured.Messages, 1)
	assert.Equal(t, RoleUser, captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "suggest 3-5 interesting questions")
	assert.Equal(t, 0.8, captured.Temperature)
	assert.Equal(t, 500, captured.MaxTokens)
	assert.True(t, captured.JSONObject)
}

func TestStaticSuggestionsReturnsCopy(t *testing.T) {
	first := StaticSuggestions()
	first[0] = "changed"
	assert.NotEqual(t, "changed", StaticSuggestions()[0])
	assert.Len(t, StaticSuggestions(), MaxSuggestions)
}
