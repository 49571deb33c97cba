package cubemap

const (
	srgbDecodeThreshold = 0.04045
	srgbEncodeThreshold = 0.0031308
	srgbLinearSlope     = 12.92
	srgbGamma           = 2.4
	srgbOffset          = 0.055
)

const (
	diceColumns = 4
	diceRows    = 3

	// Equirectangular output is 8 face widths by 4 face heights (2:1).
	equirectFacesWide = 8
	equirectFacesHigh = 4
)
