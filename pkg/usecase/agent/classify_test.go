package agent_test

import (
	"testing"

	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/usecase/agent"
	"github.com/m-mizutani/gt"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		question string
		want     model.Category
		has      []model.Category
	}{
		{"What's my most recent project?", model.CategoryTemporal, []model.Category{model.CategoryTemporal}},
		{"Which projects did I do in 2023?", model.CategoryTemporal, []model.Category{model.CategoryTemporal}},
		{"How many certifications do I have?", model.CategoryAggregation, []model.Category{model.CategoryAggregation}},
		{"Projects about machine learning", model.CategorySemantic, []model.Category{model.CategorySemantic}},
		{"Tell me more details about the career bot", model.CategoryDetailExpansion, []model.Category{model.CategoryDetailExpansion, model.CategorySemantic}},
		{"Python projects", "", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.question, func(t *testing.T) {
			hint := agent.Classify(tc.question)
			for _, c := range tc.has {
				gt.True(t, hint.Has(c))
			}
			gt.Equal(t, hint.Strongest(), tc.want)
		})
	}
}

func TestClassifyMatchesWholeWords(t *testing.T) {
	hint := agent.Classify("Elasticsearch clusters I ran")
	gt.False(t, hint.Has(model.CategoryTemporal))
}

func TestClassifyIsDeterministic(t *testing.T) {
	q := "How many of my latest projects are about AI?"
	gt.Equal(t, agent.Classify(q), agent.Classify(q))
}

func TestClassifyCountsOccurrences(t *testing.T) {
	testCases := map[string]struct {
		question string
		category model.Category
		want     int
	}{
		"overlapping phrase counts once": {"What's my most recent project?", model.CategoryTemporal, 1},
		"repeated keyword":               {"Latest job and latest degree", model.CategoryTemporal, 2},
		"every year":                     {"Projects between 2019 and 2021", model.CategoryTemporal, 2},
		"distinct keywords":              {"How many projects, and the total count?", model.CategoryAggregation, 3},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, agent.Classify(tc.question)[tc.category], tc.want)
		})
	}
}
