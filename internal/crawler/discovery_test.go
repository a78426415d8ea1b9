package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolharvest/internal/browser"
	"toolharvest/internal/config"
	"toolharvest/internal/models"
	"toolharvest/internal/registry"
)

// scriptedPage serves a fixed sequence of listing documents, one per
// snapshot; the last one repeats.
type scriptedPage struct {
	snapshots []string
	calls     int
	height    int
	navErr    error
	onHarvest func(call int)
	scrolls   []int
}

func (p *scriptedPage) Navigate(ctx context.Context, _ string, _ browser.NavigateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return p.navErr
}

func (p *scriptedPage) Evaluate(ctx context.Context, q browser.Query, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch q.Name {
	case browser.QueryDocumentHTML:
		html := p.snapshots[min(p.calls, len(p.snapshots)-1)]
		p.calls++

		if p.onHarvest != nil {
			p.onHarvest(p.calls)
		}

		*out.(*string) = html
	case browser.QueryScrollHeight:
		p.height += 1000
		*out.(*int) = p.height
	case browser.QueryImageStats:
		*out.(*browser.ImageCount) = browser.ImageCount{Matching: 1, Loaded: 1}
	default:
		return browser.ErrUnknownQuery
	}

	return nil
}

func (p *scriptedPage) ScrollTo(ctx context.Context, y int) error {
	p.scrolls = append(p.scrolls, y)

	return ctx.Err()
}

func (p *scriptedPage) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (p *scriptedPage) WaitForCondition(ctx context.Context, _ browser.Query, _ time.Duration) (bool, error) {
	return false, ctx.Err()
}

// listingHTML renders one card per identifier with a distinct logo.
func listingHTML(ids ...string) string {
	var b strings.Builder

	b.WriteString("<html><body><ul>")

	for i, id := range ids {
		fmt.Fprintf(&b, `<li class="tool-item"><a href="/tool/%s"><img src="https://cdn.toolify.ai/logos/%d_1_1.webp"></a></li>`, id, i+1)
	}

	b.WriteString("</ul></body></html>")

	return b.String()
}

func idsUpTo(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("tool-%02d", i+1)
	}

	return ids
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Discovery.ScrollPauseMs = 0
	cfg.Discovery.GrowthTimeoutMs = 0
	cfg.Discovery.SettleDelayMs = 0
	cfg.Discovery.ImagePollAttempts = 1
	cfg.Discovery.ImagePollDelayMs = 0
	cfg.Extraction.NavigateDelayMs = 0
	cfg.Retry.InitialDelayMs = 0

	return cfg
}

func newTestDiscoverer(t *testing.T, page browser.Page) (*Discoverer, *registry.Registry) {
	t.Helper()

	cfg := testConfig()

	harvester, err := NewHarvester(cfg.Source)
	require.NoError(t, err)

	reg := registry.New(nil)

	return NewDiscoverer(cfg, page, harvester, reg, nil), reg
}

func TestDiscover_StallTerminatesAfterFiveIterations(t *testing.T) {
	page := &scriptedPage{snapshots: []string{listingHTML("a", "b")}}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 0, 200)
	require.NoError(t, err)

	assert.Equal(t, StopStall, result.StopReason)
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, 2, result.Items.Len())
	assert.Equal(t, 6, page.calls, "one initial harvest plus one per iteration")
}

func TestDiscover_StopsAtFifthConsecutiveStall(t *testing.T) {
	page := &scriptedPage{snapshots: []string{
		listingHTML(idsUpTo(2)...),
		listingHTML(idsUpTo(4)...),
		listingHTML(idsUpTo(6)...),
	}}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 0, 200)
	require.NoError(t, err)

	// Two growing iterations, then five stalls.
	assert.Equal(t, StopStall, result.StopReason)
	assert.Equal(t, 7, result.Iterations)
	assert.Equal(t, 6, result.Items.Len())
}

func TestDiscover_StallCounterResetsOnGrowth(t *testing.T) {
	page := &scriptedPage{snapshots: []string{
		listingHTML(idsUpTo(1)...),
		listingHTML(idsUpTo(1)...),
		listingHTML(idsUpTo(1)...),
		listingHTML(idsUpTo(1)...),
		listingHTML(idsUpTo(1)...),
		listingHTML(idsUpTo(2)...),
	}}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 0, 200)
	require.NoError(t, err)

	assert.Equal(t, 4+1+5, result.Iterations)
	assert.Equal(t, 2, result.Items.Len())
}

func TestDiscover_StopsAtTarget(t *testing.T) {
	page := &scriptedPage{snapshots: []string{
		listingHTML(idsUpTo(2)...),
		listingHTML(idsUpTo(4)...),
		listingHTML(idsUpTo(6)...),
	}}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 3, 200)
	require.NoError(t, err)

	assert.Equal(t, StopTarget, result.StopReason)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 3, result.Items.Len())
}

func TestDiscover_TargetReachedByFirstHarvest(t *testing.T) {
	page := &scriptedPage{snapshots: []string{listingHTML(idsUpTo(10)...)}}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 4, 200)
	require.NoError(t, err)

	assert.Equal(t, StopTarget, result.StopReason)
	assert.Zero(t, result.Iterations)
	assert.Equal(t, 4, result.Items.Len())
}

func TestDiscover_StopsAtMaxAttempts(t *testing.T) {
	snapshots := make([]string, 0, 10)
	for n := 1; n <= 10; n++ {
		snapshots = append(snapshots, listingHTML(idsUpTo(n)...))
	}

	page := &scriptedPage{snapshots: snapshots}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 0, 4)
	require.NoError(t, err)

	assert.Equal(t, StopMaxAttempts, result.StopReason)
	assert.Equal(t, 4, result.Iterations)
	assert.Equal(t, 5, result.Items.Len())
}

func TestDiscover_NoDuplicateIdentifiersAndFirstLogoKept(t *testing.T) {
	first := `<li><a href="/tool/a"><img src="https://cdn/x/1_1_1.webp"></a></li>`
	later := `<li><a href="/tool/a"><img src="https://cdn/x/9_9_9.webp"></a></li><li><a href="/tool/a">again</a></li>`

	page := &scriptedPage{snapshots: []string{
		"<ul>" + first + "</ul>",
		"<ul>" + later + "</ul>",
	}}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 0, 200)
	require.NoError(t, err)

	items := result.Items.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn/x/1_1_1.webp", items[0].CandidateLogoURL)

	seen := map[string]bool{}
	for _, item := range items {
		assert.False(t, seen[item.Identifier], "duplicate %s", item.Identifier)
		seen[item.Identifier] = true
	}
}

func TestDiscover_SharedLogoClaimedOnce(t *testing.T) {
	html := `<ul>
<li><a href="/tool/a"><img src="https://cdn/x/1_2_3.webp"></a></li>
<li><a href="/tool/b"><img src="https://cdn/x/1_2_3.webp"></a></li>
</ul>`

	page := &scriptedPage{snapshots: []string{html}}
	d, reg := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 0, 200)
	require.NoError(t, err)

	a, _ := result.Items.Get("a")
	b, _ := result.Items.Get("b")

	assert.Equal(t, "https://cdn/x/1_2_3.webp", a.CandidateLogoURL)
	assert.Empty(t, b.CandidateLogoURL)
	assert.Equal(t, 1, reg.Conflicts())
}

func TestDiscover_CancelledReturnsPartialSet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := &scriptedPage{
		snapshots: []string{
			listingHTML(idsUpTo(2)...),
			listingHTML(idsUpTo(4)...),
			listingHTML(idsUpTo(6)...),
		},
		onHarvest: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(ctx, 0, 200)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// The harvest that observed the cancel still merged its items.
	assert.Equal(t, StopCancelled, result.StopReason)
	assert.Equal(t, 4, result.Items.Len())
	assert.Equal(t, 1, result.Iterations)
}

func TestDiscover_ListingUnavailable(t *testing.T) {
	page := &scriptedPage{navErr: errors.New("boom"), snapshots: []string{""}}
	d, _ := newTestDiscoverer(t, page)

	result, err := d.Discover(context.Background(), 0, 200)
	assert.True(t, errors.Is(err, ErrListingUnavailable))
	assert.Zero(t, result.Items.Len())
}

func TestDiscover_OscillatingScroll(t *testing.T) {
	page := &scriptedPage{snapshots: []string{listingHTML("a")}}
	d, _ := newTestDiscoverer(t, page)

	_, err := d.Discover(context.Background(), 0, 1)
	require.NoError(t, err)

	require.Len(t, page.scrolls, 3)
	assert.Equal(t, page.scrolls[0], page.scrolls[2])
	assert.Equal(t, page.scrolls[0]-400, page.scrolls[1])
}

func TestDiscoverySet(t *testing.T) {
	set := NewDiscoverySet()

	assert.True(t, set.Add(models.DiscoveredItem{Identifier: "b"}))
	assert.True(t, set.Add(models.DiscoveredItem{Identifier: "a"}))
	assert.False(t, set.Add(models.DiscoveredItem{Identifier: "b"}))

	items := set.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Identifier)
	assert.Equal(t, "a", items[1].Identifier)
}
