// sigil/signature_test.go
package sigil

import "testing"

func TestNormalizeDoc(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text unchanged",
			in:   "Adds one to the input.",
			want: "Adds one to the input.",
		},
		{
			name: "untagged fence gets the language tag",
			in:   "Example:\n```\nlet five = add_one(4);\n```",
			want: "Example:\n```rust\nlet five = add_one(4);\n```",
		},
		{
			name: "already tagged fence unchanged",
			in:   "```rust\nfoo();\n```",
			want: "```rust\nfoo();\n```",
		},
		{
			name: "tag containing the language name unchanged",
			in:   "```rustdoc\nfoo();\n```",
			want: "```rustdoc\nfoo();\n```",
		},
		{
			name: "other language retagged",
			in:   "```text\nfoo();\n```",
			want: "```rust\nfoo();\n```",
		},
		{
			name: "multiple fences handled independently",
			in:   "```\na();\n```\nand\n```rust\nb();\n```",
			want: "```rust\na();\n```\nand\n```rust\nb();\n```",
		},
		{
			name: "blank doc is none",
			in:   "  \n\t",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeDoc(tt.in)
			if got != tt.want {
				t.Errorf("normalizeDoc(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Running the normalizer on its own output must change nothing.
			if again := normalizeDoc(got); again != got {
				t.Errorf("normalizeDoc is not idempotent: %q became %q", got, again)
			}
		})
	}
}
