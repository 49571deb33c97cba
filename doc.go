// Package cubemap converts panoramas between the equirectangular (lat/long)
// projection and a six-face cubemap laid out as a 4x3 "dice" cross.
//
// The engine works on in-memory float32 pixel buffers only. It keeps alpha as an
// independent linear channel, understands linear and sRGB encoded color, and never
// clamps HDR values unless asked to. File decoding and encoding live in separate
// packages.
package cubemap
