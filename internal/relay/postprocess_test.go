package relay

import "testing"

func TestPostprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "Hello there!",
			want: "Hello there!",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "  \n Hello \t\n",
			want: "Hello",
		},
		{
			name: "bare fence wrapper stripped",
			in:   "```\nBonjour!\n```",
			want: "Bonjour!",
		},
		{
			name: "fence with language tag stripped",
			in:   "```text\nBonjour!\n```",
			want: "Bonjour!",
		},
		{
			name: "multiline body preserved",
			in:   "```\nline one\nline two\n```",
			want: "line one\nline two",
		},
		{
			name: "mid-reply fence left alone",
			in:   "Use this:\n```\ncode\n```",
			want: "Use this:\n```\ncode\n```",
		},
		{
			name: "opening fence without closing left alone",
			in:   "```\nincomplete",
			want: "```\nincomplete",
		},
		{
			name: "single fence line left alone",
			in:   "```",
			want: "```",
		},
		{
			name: "empty fence body collapses to empty",
			in:   "```\n```",
			want: "",
		},
		{
			name: "empty input",
			in:   "   ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Postprocess(tt.in); got != tt.want {
				t.Errorf("Postprocess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
