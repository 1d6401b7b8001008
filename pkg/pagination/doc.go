// Package pagination walks server-side paged result sets.
//
// A paged method exposes an optional count endpoint and a pages endpoint that
// takes an offset and a page size. The Orchestrator learns the total from the
// count endpoint, then requests pages in increasing offset order and folds
// their rows into one ordered record list.
//
// Example usage:
//
//	orch := pagination.NewOrchestrator(wsClient, pagination.DefaultConfig())
//	handle, err := orch.Fetch(ctx, exec, pagination.Method{
//		Path:      "compound/members/pages",
//		CountPath: "compound/members/count",
//		Params:    client.Params{client.String("smiles", "CCO")},
//		PageSize:  100,
//	})
//
// The orchestrator:
//   - Checks for cancellation before every page
//   - Runs every call under cancel.Run so a blocked call can be abandoned
//   - Stops on a short page, a reached total, a caller limit or a page cap
//   - Keeps rows beyond the reported total
//   - Discards accumulated rows when the fetch fails or is canceled
//
// A page size of PageSizeAll sends size=all and issues exactly one page call.
package pagination
