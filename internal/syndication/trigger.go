package syndication

import (
	"encoding/json"
	"os"
	"strings"
)

// ProductionContext is the deploy context that allows a run.
const ProductionContext = "production"

// Trigger describes the deploy event that started a run.
type Trigger struct {
	Context       string `json:"context,omitempty"`
	CommitMessage string `json:"commitMessage,omitempty"`
}

// ParseTrigger extracts the deploy context and commit message from a
// deploy-succeeded webhook body. The event may be nested under "payload" or
// "deploy". Unparseable bodies yield an empty trigger.
func ParseTrigger(body []byte) Trigger {
	var parsed map[string]any
	if len(body) == 0 || json.Unmarshal(body, &parsed) != nil {
		return Trigger{}
	}
	payload := parsed
	for _, key := range []string{"payload", "deploy"} {
		if m, ok := parsed[key].(map[string]any); ok {
			payload = m
			break
		}
	}

	return Trigger{
		Context: lookup(payload,
			"context", "deploy_context", "deploy.context", "deploy.deploy_context", "context_name"),
		CommitMessage: lookup(payload, "commit_message", "commitMessage", "commit.message"),
	}
}

// lookup returns the first non-empty string found at one of the dotted
// paths.
func lookup(m map[string]any, paths ...string) string {
	for _, p := range paths {
		cur := m
		parts := strings.Split(p, ".")
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = next
		}
		if cur == nil {
			continue
		}
		if v := firstString(cur, parts[len(parts)-1]); v != "" {
			return v
		}
	}
	return ""
}

// EnvDeployContext returns the deploy context advertised by the hosting
// environment, if any.
func EnvDeployContext() string {
	for _, key := range []string{"CONTEXT", "DEPLOY_CONTEXT", "NETLIFY_CONTEXT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// IsProduction reports whether the trigger runs in production given the
// environment's context. At least one context must be present and none may
// name a different environment.
func (t Trigger) IsProduction(envContext string) bool {
	ctx, env := strings.TrimSpace(t.Context), strings.TrimSpace(envContext)
	if ctx != "" && ctx != ProductionContext {
		return false
	}
	if env != "" && env != ProductionContext {
		return false
	}
	return ctx != "" || env != ""
}

// IsBotCommit reports whether the deploy was caused by the syndicator's own
// commit.
func (t Trigger) IsBotCommit(prefix string) bool {
	return prefix != "" && strings.HasPrefix(t.CommitMessage, prefix)
}
