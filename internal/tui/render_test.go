package tui

import (
	"testing"

	"github.com/kuangren777/llm-roundtable/internal/api"
)

func TestFormatChars(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{842, "842"},
		{999, "999"},
		{1000, "1.0k"},
		{1234, "1.2k"},
		{9999, "10.0k"},
		{10000, "10k"},
		{123456, "123k"},
	}

	for _, tt := range tests {
		if got := formatChars(tt.n); got != tt.want {
			t.Errorf("formatChars(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestDiscussionLabel(t *testing.T) {
	tests := []struct {
		name string
		d    api.Discussion
		want string
	}{
		{
			name: "title preferred",
			d:    api.Discussion{ID: 1, Topic: "long topic text", Title: "Short Title"},
			want: "Short Title",
		},
		{
			name: "topic fallback",
			d:    api.Discussion{ID: 1, Topic: "long topic text"},
			want: "long topic text",
		},
		{
			name: "id fallback",
			d:    api.Discussion{ID: 7},
			want: "discussion 7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := discussionLabel(tt.d); got != tt.want {
				t.Errorf("discussionLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoleOf(t *testing.T) {
	agents := []api.AgentConfig{
		{Name: "Alice", Role: api.RoleHost},
		{Name: "Bob", Role: api.RolePanelist},
	}

	if got := roleOf(agents, "Alice"); got != "host" {
		t.Errorf("roleOf(Alice) = %q, want %q", got, "host")
	}
	if got := roleOf(agents, "Bob"); got != "panelist" {
		t.Errorf("roleOf(Bob) = %q, want %q", got, "panelist")
	}
	if got := roleOf(agents, "Carol"); got != "" {
		t.Errorf("roleOf(Carol) = %q, want empty", got)
	}
}
