package crawler

// Entry is a URL waiting in the frontier together with its link depth.
type Entry struct {
	URL   string
	Depth int
}

// Frontier is the FIFO queue of URLs still to validate plus the set of URLs
// ever offered. A URL enters the visited set when it is offered, so it is
// validated at most once per scan.
//
// The URL budget counts both processed and queued entries: Offer refuses new
// URLs once processed + queued reaches maxURLs, so processed never exceeds it.
// Frontier is not safe for concurrent use; each scan owns its own.
type Frontier struct {
	maxURLs   int
	maxDepth  int
	visited   map[string]struct{}
	queue     []Entry
	processed int
}

// NewFrontier returns an empty frontier with the given bounds.
func NewFrontier(maxURLs, maxDepth int) *Frontier {
	return &Frontier{
		maxURLs:  maxURLs,
		maxDepth: maxDepth,
		visited:  make(map[string]struct{}),
	}
}

// Offer queues url at depth. It returns false, leaving the frontier
// unchanged, when url was already offered, depth exceeds the maximum depth,
// or the URL budget is used up.
func (f *Frontier) Offer(url string, depth int) bool {
	if _, ok := f.visited[url]; ok {
		return false
	}
	if depth > f.maxDepth {
		return false
	}
	if f.processed+len(f.queue) >= f.maxURLs {
		return false
	}
	f.visited[url] = struct{}{}
	f.queue = append(f.queue, Entry{URL: url, Depth: depth})
	return true
}

// Next removes and returns the oldest entry and counts it as processed.
// It returns false when the queue is empty or the budget is exhausted.
func (f *Frontier) Next() (Entry, bool) {
	if len(f.queue) == 0 || f.processed >= f.maxURLs {
		return Entry{}, false
	}
	e := f.queue[0]
	f.queue[0] = Entry{}
	f.queue = f.queue[1:]
	f.processed++
	return e, true
}

// Seen reports whether url has ever been offered successfully.
func (f *Frontier) Seen(url string) bool {
	_, ok := f.visited[url]
	return ok
}

// Processed returns how many entries Next has handed out.
func (f *Frontier) Processed() int { return f.processed }

// Len returns the number of queued entries.
func (f *Frontier) Len() int { return len(f.queue) }
