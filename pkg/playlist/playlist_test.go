package playlist

import (
	"strings"
	"testing"
)

func TestRewrite(t *testing.T) {
	rewriter := Rewriter{
		Prefix:         "/video/T",
		KeyName:        "enc.key",
		BlockedMarkers: []string{"jarvis.ts"},
	}

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name: "segments and key",
			input: []string{
				"#EXTM3U",
				"seg0.ts",
				`#EXT-X-KEY:METHOD=AES-128,URI="k.key"`,
				"seg1.ts",
			},
			want: []string{
				"#EXTM3U",
				"/video/T/seg0.ts",
				`#EXT-X-KEY:METHOD=AES-128,URI="/video/T/enc.key"`,
				"/video/T/seg1.ts",
			},
		},
		{
			name: "directives and blanks are unchanged",
			input: []string{
				"#EXTM3U",
				"#EXT-X-VERSION:3",
				"",
				"#EXT-X-TARGETDURATION:6",
				"",
			},
			want: []string{
				"#EXTM3U",
				"#EXT-X-VERSION:3",
				"",
				"#EXT-X-TARGETDURATION:6",
				"",
			},
		},
		{
			name: "blocked segment is removed not blanked",
			input: []string{
				"#EXTM3U",
				"#EXTINF:4,",
				"seg0.ts",
				"#EXTINF:4,",
				"jarvis.ts",
				"#EXTINF:4,",
				"seg1.ts",
			},
			want: []string{
				"#EXTM3U",
				"#EXTINF:4,",
				"/video/T/seg0.ts",
				"#EXTINF:4,",
				"#EXTINF:4,",
				"/video/T/seg1.ts",
			},
		},
		{
			name: "key attributes after the uri survive",
			input: []string{
				`#EXT-X-KEY:METHOD=AES-128,URI="enc.key",IV=0x0123456789abcdef`,
			},
			want: []string{
				`#EXT-X-KEY:METHOD=AES-128,URI="/video/T/enc.key",IV=0x0123456789abcdef`,
			},
		},
		{
			name: "sub playlist lines are rewritten too",
			input: []string{
				"#EXT-X-STREAM-INF:BANDWIDTH=1000000",
				"480p.m3u8",
			},
			want: []string{
				"#EXT-X-STREAM-INF:BANDWIDTH=1000000",
				"/video/T/480p.m3u8",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriter.Rewrite(strings.Join(tt.input, "\n"))
			want := strings.Join(tt.want, "\n")

			if got != want {
				t.Errorf("Rewrite() = \n---------- have ----------\n%s\n---------- want ----------\n%s", got, want)
			}
		})
	}
}

func TestRewriteIdentityOnDirectivesOnly(t *testing.T) {
	input := "#EXTM3U\n#EXT-X-VERSION:3\n\n#EXT-X-ENDLIST\n"

	got := Rewriter{Prefix: "/video/T", KeyName: "enc.key"}.Rewrite(input)
	if got != input {
		t.Errorf("Rewrite() changed a manifest without uri lines:\nhave %q\nwant %q", got, input)
	}
}

func TestKeyURI(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
		found    bool
	}{
		{
			name:     "relative key uri",
			manifest: "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"enc.key\",IV=0x00\nseg0.ts",
			want:     "enc.key",
			found:    true,
		},
		{
			name:     "absolute key uri",
			manifest: "#EXT-X-KEY:METHOD=AES-128,URI=\"https://keys.example.com/k\"",
			want:     "https://keys.example.com/k",
			found:    true,
		},
		{
			name:     "first key wins",
			manifest: "#EXT-X-KEY:METHOD=AES-128,URI=\"first.key\"\n#EXT-X-KEY:METHOD=AES-128,URI=\"second.key\"",
			want:     "first.key",
			found:    true,
		},
		{
			name:     "no key directive",
			manifest: "#EXTM3U\nseg0.ts",
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := KeyURI(tt.manifest)
			if found != tt.found || got != tt.want {
				t.Errorf("KeyURI() = %q, %v, want %q, %v", got, found, tt.want, tt.found)
			}
		})
	}
}

func TestParse(t *testing.T) {
	lines := Parse("#EXTM3U\n\nseg0.ts")

	want := []LineKind{Directive, Blank, URI}
	if len(lines) != len(want) {
		t.Fatalf("Parse() returned %d lines, want %d", len(lines), len(want))
	}
	for i, kind := range want {
		if lines[i].Kind != kind {
			t.Errorf("line %d kind = %v, want %v", i, lines[i].Kind, kind)
		}
	}
}
