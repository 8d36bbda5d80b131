package surface

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/surface-composer/pkg/client"
	"github.com/menta2k/surface-composer/pkg/prompt"
	"github.com/menta2k/surface-composer/pkg/types"
)

// maxDescriptionLength caps the sentence embedded into the composition prompt
const maxDescriptionLength = 300

// Description is the outcome of a surface description call
type Description struct {
	Text     string
	Fallback bool
	// Raw is the unmodified model reply, empty when the call failed
	Raw string
	// Cause explains why the fallback was used
	Cause error
}

// Describer asks a vision model what surface lies under the marker
type Describer struct {
	client client.Describer
}

// NewDescriber creates a surface describer on top of a vision client
func NewDescriber(c client.Describer) *Describer {
	return &Describer{client: c}
}

// Describe sends the marked scene with the fixed instruction. Any model
// failure or unusable reply yields the fallback description instead of an
// error. Only cancellation of ctx is returned as an error.
func (d *Describer) Describe(ctx context.Context, marked types.RasterImage) (Description, error) {
	raw, err := d.client.Describe(ctx, prompt.SurfaceDescriptionRequest(), marked)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Description{}, ctxErr
		}
		return fallback(fmt.Errorf("%w: %v", types.ErrDescriptionUnavailable, err)), nil
	}

	text := Sanitize(raw)
	if !usable(text) {
		return Description{
			Text:     prompt.FallbackSurfaceDescription,
			Fallback: true,
			Raw:      raw,
			Cause:    fmt.Errorf("%w: unusable reply %q", types.ErrDescriptionUnavailable, truncate(raw, 80)),
		}, nil
	}

	return Description{Text: text, Raw: raw}, nil
}

func fallback(cause error) Description {
	return Description{
		Text:     prompt.FallbackSurfaceDescription,
		Fallback: true,
		Cause:    cause,
	}
}

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reSentence   = regexp.MustCompile(`^(.+?[.!?])(\s|$)`)
	reLeadIn     = regexp.MustCompile(`(?i)^(sure[,!.]?\s*|here is (the|a) (description|sentence)[:.]?\s*|the (red )?(dot|marker) (is|sits) (placed |located )?on\s+)`)
)

// Sanitize reduces a model reply to a single clean sentence
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)

	// strip code fences
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.Trim(s, "`")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'“”`)
	s = reLeadIn.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if m := reSentence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	return truncate(s, maxDescriptionLength)
}

// refusal markers that make a reply useless as a surface description
var unusableIndicators = []string{
	"i can't", "i cannot", "i'm unable", "i am unable", "unable to", "sorry", "as an ai", "no image",
}

func usable(text string) bool {
	if len(strings.Fields(text)) < 2 {
		return false
	}
	lower := strings.ToLower(text)
	for _, indicator := range unusableIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
