// Package project compiles a TypeScript project into a cache of artifacts.
//
// A compilation resolves a tsconfig into a Program, runs the configured
// front-end over it and intercepts every emitted file. Emitted JavaScript is
// passed through the transform pipeline and handed to the artifact codec;
// everything else is written through to disk unchanged. If any error
// diagnostic is collected the whole cache is discarded.
package project
