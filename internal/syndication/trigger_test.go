package syndication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Trigger
	}{
		{"empty", "", Trigger{}},
		{"garbage", "{", Trigger{}},
		{"flat", `{"context":"production","commit_message":"Add post"}`, Trigger{Context: "production", CommitMessage: "Add post"}},
		{
			"nested payload",
			`{"payload":{"deploy_context":"deploy-preview","commit":{"message":"Syndication: update x"}}}`,
			Trigger{Context: "deploy-preview", CommitMessage: "Syndication: update x"},
		},
		{
			"deploy object",
			`{"deploy":{"context":"production","commitMessage":"Fix typo"}}`,
			Trigger{Context: "production", CommitMessage: "Fix typo"},
		},
		{
			"context inside deploy",
			`{"payload":{"deploy":{"context":"branch-deploy"}}}`,
			Trigger{Context: "branch-deploy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTrigger([]byte(tt.body)))
		})
	}
}

func TestTriggerIsProduction(t *testing.T) {
	tests := []struct {
		ctx, env string
		want     bool
	}{
		{"production", "", true},
		{"", "production", true},
		{"production", "production", true},
		{"", "", false},
		{"deploy-preview", "", false},
		{"production", "branch-deploy", false},
		{"deploy-preview", "production", false},
	}
	for _, tt := range tests {
		got := Trigger{Context: tt.ctx}.IsProduction(tt.env)
		assert.Equal(t, tt.want, got, "context=%q env=%q", tt.ctx, tt.env)
	}
}

func TestTriggerIsBotCommit(t *testing.T) {
	assert.True(t, Trigger{CommitMessage: "Syndication: update hello"}.IsBotCommit("Syndication:"))
	assert.False(t, Trigger{CommitMessage: "Add post about Syndication:"}.IsBotCommit("Syndication:"))
	assert.False(t, Trigger{CommitMessage: "anything"}.IsBotCommit(""))
}
