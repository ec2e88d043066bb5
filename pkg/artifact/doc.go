// Package artifact converts compiled script text into portable V8 code-cache
// blobs and back into something the running engine will accept.
//
// # Overview
//
// An artifact is the raw cached-data blob the engine produces for one
// compiled unit. The engine refuses to consume a blob unless two header
// fields agree with the running build:
//
//   - the version fingerprint (flag hash and friends), which differs between
//     closely related engine builds, and
//   - the source length, which must equal the length of the source text the
//     blob is consumed against.
//
// Fix handles both: it copies the fingerprint ranges from a reference blob
// compiled on the running engine, and it decodes the source length so a
// placeholder text of the same length can stand in for the original source.
//
// # Layouts
//
// Header offsets differ between engine generations. They are described by a
// small versioned table (see Layout) resolved once from the engine version.
// Versions outside the table are rejected with
// UnsupportedEngineGenerationError rather than guessed.
//
// # Usage Example
//
//	codec, err := artifact.NewCodec(eng)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	blob, err := codec.Compile("module.exports = 42;", true)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fixed, err := codec.Fix(blob)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	script, err := eng.CompileCached(fixed.Placeholder, fixed.Data, "main.tsb")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := artifact.Assert(script); err != nil {
//		log.Fatal(err) // stale or incompatible blob
//	}
package artifact
