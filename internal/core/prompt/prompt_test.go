package prompt

import (
	"testing"
)

func TestLooksLikePrompt(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{name: "user at host with tilde", line: "user@host:~$ ", want: true},
		{name: "root user at host", line: "root@web-01:/var/log# ", want: true},
		{name: "bracketed bash", line: "[deploy@db1 ~]$ ", want: true},
		{name: "bracketed root", line: "[root@db1 etc]# ", want: true},
		{name: "bare dollar", line: "$ ", want: true},
		{name: "sh version prompt", line: "sh-5.1$ ", want: true},
		{name: "tilde path", line: "~/src/app $", want: true},
		{name: "python repl", line: ">>> ", want: true},
		{name: "powershell", line: `PS C:\Users\dev> `, want: true},
		{name: "zsh hostname", line: "macbook%", want: true},
		{name: "zsh user host dir", line: "dev@macbook ~ % ", want: true},
		{name: "starship glyph", line: "~/src on main ❯ ", want: true},
		{name: "robbyrussell arrow", line: "➜  src git:(main) ✗ ", want: true},
		{name: "powerline separator", line: " dev  ~/src \ue0b0 ", want: true},
		{name: "colored prompt", line: "\x1b[01;32muser@host\x1b[00m:\x1b[01;34m~\x1b[00m$ ", want: true},
		{name: "title set then prompt", line: "\x1b]0;user@host: ~\x07user@host:~$ ", want: true},
		{name: "non-breaking space", line: "$\u00A0", want: true},

		{name: "empty", line: "", want: false},
		{name: "whitespace only", line: "   \t ", want: false},
		{name: "escape codes only", line: "\x1b[0m\x1b[K", want: false},
		{name: "plain output", line: "Downloading package...", want: false},
		{name: "progress percentage", line: "Downloading 45%", want: false},
		{name: "bare percentage", line: "45%", want: false},
		{name: "sentence", line: "Build finished in 3.2s", want: false},
		{name: "password prompt", line: "Password: ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikePrompt(tt.line); got != tt.want {
				t.Errorf("LooksLikePrompt(%q) = %v, want %v (cleaned %q)", tt.line, got, tt.want, Clean(tt.line))
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "[deploy@db1 ~]$", want: "bracketed"},
		{line: "user@host:~$", want: "user-host"},
		{line: "~ $", want: "tilde"},
		{line: "bash-5.2#", want: "sigil"},
		{line: "macbook%", want: "zsh"},
		{line: "src ❯", want: "glyph"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := Classify(tt.line)
			if !ok {
				t.Fatalf("Classify(%q) did not match", tt.line)
			}
			if got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{name: "plain", line: "plain text", want: "plain text"},
		{name: "color codes", line: "\x1b[1m\x1b[31mbold red\x1b[0m normal", want: "bold red normal"},
		{name: "cursor movement", line: "\x1b[2Amove up", want: "move up"},
		{name: "osc title with bell", line: "before\x1b]0;title\x07after", want: "beforeafter"},
		{name: "stray control bytes", line: "a\x07b\x08c", want: "abc"},
		{name: "tabs become spaces", line: "\tindented\t", want: "indented"},
		{name: "trims whitespace", line: "  $  ", want: "$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.line); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestVisibleTail(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "no carriage return", want: "no carriage return"},
		{line: "10%\r50%\r100%", want: "100%"},
		{line: "progress\ruser@host:~$ ", want: "user@host:~$ "},
		{line: "trailing\r", want: ""},
	}

	for _, tt := range tests {
		if got := VisibleTail(tt.line); got != tt.want {
			t.Errorf("VisibleTail(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
