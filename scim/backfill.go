package scim

import "context"

// upstreamPageSize is the page size requested on each backfill fetch — the
// upstream's maximum page size per §4.4.
const upstreamPageSize = 100

// PageFetcher fetches one page of resources from the upstream, starting at
// the 1-based startIndex, requesting at most count resources. totalResults
// is the upstream's advertised total, or 0 if it did not report one.
type PageFetcher func(ctx context.Context, startIndex, count int) (page []Resource, totalResults int, err error)

// BackfillResult is the outcome of materializing a working set for a
// filtered list request.
type BackfillResult struct {
	Resources []Resource
	// Undercounted is true when the loop stopped because it reached
	// workingSize while the upstream may still have had more data — the
	// condition callers must surface via the undercount observability
	// counter (§7), as opposed to stopping because the upstream was
	// genuinely exhausted or failed.
	Undercounted bool
}

// WorkingSize computes working_size = min(count * multiplier,
// maxFilterFetchSize), never less than count, the bound on how many
// resources the backfill controller will materialize before giving up on
// finding more matches.
func WorkingSize(count, multiplier, maxFilterFetchSize int) int {
	size := count * multiplier
	if size > maxFilterFetchSize {
		size = maxFilterFetchSize
	}
	if size < count {
		size = count
	}
	return size
}

// RunBackfill orchestrates paged upstream fetches to accumulate a working
// set of at most workingSize resources, per §4.4's paging loop. A failed
// fetch stops the loop and returns whatever was already accumulated
// (best-effort); it is not itself an error.
func RunBackfill(ctx context.Context, fetch PageFetcher, workingSize int) BackfillResult {
	var fetched []Resource
	cursor := 1
	exhausted := false

	for len(fetched) < workingSize {
		if err := ctx.Err(); err != nil {
			break
		}

		page, totalResults, err := fetch(ctx, cursor, upstreamPageSize)
		if err != nil {
			exhausted = true // upstream failure is treated as "nothing more to get"
			break
		}

		fetched = append(fetched, page...)

		if len(page) < upstreamPageSize {
			exhausted = true
			break
		}
		if totalResults > 0 && len(fetched) >= totalResults {
			exhausted = true
			break
		}
		cursor += upstreamPageSize
	}

	undercounted := !exhausted && len(fetched) >= workingSize
	if len(fetched) > workingSize {
		fetched = fetched[:workingSize]
	}

	return BackfillResult{Resources: fetched, Undercounted: undercounted}
}
