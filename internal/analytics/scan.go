package analytics

import (
	"bufio"
	"net/url"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// maxLine bounds a single log record.
const maxLine = 1 << 20

// record is one request log line.
type record struct {
	Level string `json:"level"`
	Data  struct {
		Context string   `json:"context"`
		Data    []string `json:"data"`
	} `json:"data"`
}

// counter folds log records into per-page counts.
type counter struct {
	route  string
	views  map[string]int
	unique map[string]map[string]struct{}
}

func newCounter(route string) *counter {
	return &counter{
		route:  route,
		views:  map[string]int{},
		unique: map[string]map[string]struct{}{},
	}
}

// scanFile folds every line of path. Unparseable lines are skipped.
func (c *counter) scanFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		c.add(sc.Bytes())
	}
	return sc.Err()
}

// add counts line if it is a successful page load.
func (c *counter) add(line []byte) {
	if len(line) == 0 {
		return
	}
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return
	}
	if r.Level != "GET" || r.Data.Context != "200" || len(r.Data.Data) == 0 {
		return
	}

	u, err := url.Parse(r.Data.Data[0])
	if err != nil {
		return
	}
	page := u.Path
	if page == "" {
		page = "/"
	}
	if !isPage(page) {
		return
	}
	if c.route != "" && page != c.route {
		return
	}

	var ip string
	if len(r.Data.Data) > 2 {
		ip = r.Data.Data[2]
	}

	c.views[page]++
	set, ok := c.unique[page]
	if !ok {
		set = map[string]struct{}{}
		c.unique[page] = set
	}
	set[ip] = struct{}{}
}

// isPage rejects API calls and static assets.
func isPage(p string) bool {
	return !strings.HasPrefix(p, "/api/") &&
		!strings.HasPrefix(p, "/public/") &&
		!strings.Contains(p, ".")
}

func (c *counter) snapshot() *Snapshot {
	views := make([]View, 0, len(c.views))
	total := 0
	for page, n := range c.views {
		views = append(views, View{Page: page, Views: n, UniqueViews: len(c.unique[page])})
		total += n
	}
	sortViews(views)
	return &Snapshot{Views: views, Total: total}
}
