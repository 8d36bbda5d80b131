package prompt

import (
	"fmt"
	"strings"

	"github.com/menta2k/surface-composer/pkg/types"
)

// FallbackSurfaceDescription replaces the surface description whenever the
// description call fails or returns nothing usable.
const FallbackSurfaceDescription = "at the specified location on the most prominent surface"

// defaultProductDescription is used when the caller gives no description
const defaultProductDescription = "the product shown in the first image"

// surfaceDescriptionRequest is sent with the marked scene
const surfaceDescriptionRequest = `You are a surface identification assistant for interior photographs.

The image is a photo of a room on a square canvas. Black bars at the edges are padding; ignore them.
A red dot with a white outline marks one location in the room.

Describe the surface the red dot sits on in EXACTLY ONE sentence. Include:
- the surface type (for example floor, wall, tabletop, countertop, backsplash, rug, ceiling)
- its material and finish (for example oak planks, painted plaster, white marble, ceramic tile)
- its extent: the continuous area that surface covers in the photo

Do not mention the red dot. Do not describe anything else. Reply with the sentence only.`

// SurfaceDescriptionRequest returns the fixed instruction for the
// surface description call. It takes no per-image input.
func SurfaceDescriptionRequest() string {
	return surfaceDescriptionRequest
}

const (
	roleStatement = `You are an expert photo editor specialising in photorealistic interior product visualisation.`

	productClause = `The FIRST image shows the product: %s. It is centered on a square canvas; the black bars around it are padding and are not part of the product.`

	sceneClause = `The SECOND image is a photo of a room. It is centered on a square canvas; the black bars around it are padding and are not part of the room.`

	placementClause = `Place the product onto the surface described as: %s.`

	tileClause = `Treat the product as a surface material. Apply it as a seamless, repeating texture across the ENTIRE continuous surface identified above, following the surface's perspective, scale and vanishing lines so that the pattern recedes correctly into the distance. Cover the whole surface, edge to edge, and nothing beyond it.`

	singleClause = `Treat the product as a single, discrete object. Place ONE instance of it centered on the identified surface, scaled naturally relative to the surrounding furniture and the room, resting on or attached to the surface the way such an object would be in real life.`

	constraintsClause = `Requirements:
- Match the room's lighting, shadows, reflections, colour temperature and camera perspective so the result is photorealistic.
- Preserve every pre-existing foreground object (furniture, people, plants, decor) that overlaps or occludes the target surface. Those objects must stay exactly where they are and remain in front of the product. Never remove, move or repaint them.
- Do not change any part of the room other than the target surface.
- Keep the black padding bars black and keep the exact same square framing and composition as the second image.
- Return only the edited image.`
)

// CompositionPrompt assembles the instruction for the composition call.
// surfaceDescription is embedded verbatim.
func CompositionPrompt(productDescription, surfaceDescription string, mode types.PlacementMode) string {
	product := strings.TrimSpace(productDescription)
	if product == "" {
		product = defaultProductDescription
	}
	surface := strings.TrimSpace(surfaceDescription)
	if surface == "" {
		surface = FallbackSurfaceDescription
	}

	modeClause := tileClause
	if mode == types.Single {
		modeClause = singleClause
	}

	sections := []string{
		roleStatement,
		fmt.Sprintf(productClause, product),
		sceneClause,
		fmt.Sprintf(placementClause, surface),
		modeClause,
		constraintsClause,
	}
	return strings.Join(sections, "\n\n")
}
