// Package core provides the domain types and client-side rules of the
// tabular import wizard.
//
// This package has no UI or transport dependencies. The HTTP shell, the
// terminal wizard and tests all use it unchanged.
//
// # Mapping
//
// A [ColumnMapping] sends each source column to a target field or to
// [DoNotImport]. Three sources feed it: manual edits, an applied
// [MappingTemplate] and a server suggestion. The last applied source
// replaces the working mapping wholesale and later edits override single
// keys on top of it (see [Resolve] and [MappingDraft]).
//
// Before submission the mapping is trimmed by [Finalize]. When nothing is
// left, [Resolver.ForSubmission] asks the suggestion service once and
// blocks the submission with [ErrNoMapping] if that is empty too:
//
//	final, suggested, err := resolver.ForSubmission(ctx, mapping, columns)
//	if errors.Is(err, core.ErrNoMapping) {
//	    // stay on the summary step
//	}
//
// # Results
//
// [Classify], [Summarize], [FailedRows] and [ResolveDownload] turn a
// [TransformResult] into what the result page shows.
//
// # Templates
//
// [MatchTemplates] ranks saved templates by how many of their columns the
// current file has, so the best fit can be offered first.
//
// # Error Handling
//
// Every backend failure is a [*CallError] that matches both its operation
// sentinel (ErrUpload, ErrPreview, ...) and either [ErrConnectivity] or
// [ErrServer]. [MapError] turns any error into a coded [UserMessage]:
//
//   - FILE001-FILE003: File errors (format, parse, size)
//   - NET001-NET002: Connectivity errors
//   - API000-API007: Errors reported by the import service
//   - MAP001: Nothing to submit
//   - WIZ001-WIZ006: Wizard navigation and session errors
//   - REQ001-REQ002: Malformed or rate-limited HTTP requests
package core
