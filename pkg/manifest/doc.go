// Package manifest extracts declared dependencies from the manifest files of
// a repository snapshot.
//
// # Dialects
//
// Each supported manifest format is a [Dialect]:
//
//   - go.mod (Go modules)
//   - package.json (npm)
//   - requirements*.txt (pip)
//   - Cargo.toml (Cargo)
//   - pubspec.yaml (Dart pub)
//
// Files that no dialect supports are skipped.
//
// # Parsing
//
// [Parser.Parse] walks a snapshot and yields one [Result] per supported
// manifest as a lazy sequence; nothing is read until the caller ranges over
// it. Directories matching the ignore globs (vendor/, node_modules/, ...)
// are not descended into.
//
// A malformed manifest produces a Result carrying a PARSE_MALFORMED error
// rather than stopping the walk. [Collect] separates the successes from the
// warnings and reports PARSE_NO_MANIFEST when nothing parsed.
package manifest
