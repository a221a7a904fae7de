package cascade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/Lllllllleong/productprogress/internal/store/memstore"
	"github.com/Lllllllleong/productprogress/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	docs    *memstore.DocStore
	objects *memstore.ObjectStore
	c       *Coordinator
	clock   *upload.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs := memstore.NewDocStore(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	objects := memstore.NewObjectStore("shop")
	start := time.UnixMilli(1717228800000)
	return &fixture{
		docs:    docs,
		objects: objects,
		c:       NewCoordinator(docs, objects, nil),
		clock:   upload.NewClock(func() time.Time { return start }),
	}
}

func (f *fixture) product(t *testing.T, name string) string {
	t.Helper()
	id, err := f.docs.Create(context.Background(), models.ProductsCollection(), models.Product{Name: name}.Fields())
	require.NoError(t, err)
	return id
}

func (f *fixture) step(t *testing.T, productID, title string, order int) string {
	t.Helper()
	id, err := f.docs.Create(context.Background(), models.StepsCollection(productID), models.Step{Title: title, Order: order}.Fields())
	require.NoError(t, err)
	return id
}

// entry seeds n images in the upload namespace and an entry referencing them.
func (f *fixture) entry(t *testing.T, productID, stepID string, n int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	var images []string
	for i := 0; i < n; i++ {
		path := upload.ObjectPath(productID, stepID, f.clock.Next(), fmt.Sprintf("photo %d.jpg", i))
		f.objects.Seed(path, []byte(path))
		addr, err := f.objects.Address(ctx, path)
		require.NoError(t, err)
		images = append(images, addr)
	}
	e := models.ProgressEntry{StepID: stepID, Note: "work", Images: images}
	id, err := f.docs.Create(ctx, models.EntriesCollection(productID), e.Fields())
	require.NoError(t, err)
	return id, images
}

func (f *fixture) exists(t *testing.T, docPath string) bool {
	t.Helper()
	_, err := f.docs.Get(context.Background(), docPath)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (f *fixture) hasObject(address string) bool {
	_, ok := f.objects.Bytes(address)
	return ok
}

// failOnce fails the first delete of every path.
func failOnce() func(string) error {
	var mu sync.Mutex
	seen := make(map[string]bool)
	return func(path string) error {
		mu.Lock()
		defer mu.Unlock()
		if seen[path] {
			return nil
		}
		seen[path] = true
		return errors.New("service unavailable")
	}
}

// failOnceMatching fails the first delete of every path containing substr.
func failOnceMatching(substr string) func(string) error {
	fail := failOnce()
	return func(path string) error {
		if !strings.Contains(path, substr) {
			return nil
		}
		return fail(path)
	}
}

func TestDeleteStep_RemovesLinkedEntriesAndImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.product(t, "Table")
	cut := f.step(t, pid, "Cut", 1)
	sand := f.step(t, pid, "Sand", 2)
	cutEntry, cutImages := f.entry(t, pid, cut, 2)
	sandEntry, sandImages := f.entry(t, pid, sand, 1)
	looseEntry, looseImages := f.entry(t, pid, "", 1)

	rep, err := f.c.DeleteStepWithReport(ctx, pid, cut)
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 1, rep.EntriesDeleted)
	assert.Equal(t, 2, rep.ObjectsDeleted)
	assert.False(t, f.exists(t, models.StepPath(pid, cut)))
	assert.False(t, f.exists(t, models.EntryPath(pid, cutEntry)))
	for _, img := range cutImages {
		assert.False(t, f.hasObject(img), img)
	}

	assert.True(t, f.exists(t, models.StepPath(pid, sand)))
	assert.True(t, f.exists(t, models.EntryPath(pid, sandEntry)))
	assert.True(t, f.exists(t, models.EntryPath(pid, looseEntry)))
	assert.True(t, f.hasObject(sandImages[0]))
	assert.True(t, f.hasObject(looseImages[0]))
}

func TestDeleteStep_SecondCallIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.product(t, "Chair")
	sid := f.step(t, pid, "Glue", 1)
	f.entry(t, pid, sid, 1)

	require.NoError(t, f.c.DeleteStep(ctx, pid, sid))

	rep, err := f.c.DeleteStepWithReport(ctx, pid, sid)
	require.NoError(t, err)
	assert.Equal(t, &Report{State: StateDone}, rep)
}

func TestDeleteStep_ObjectDeleteFailuresAreSuppressed(t *testing.T) {
	f := newFixture(t)
	pid := f.product(t, "Shelf")
	sid := f.step(t, pid, "Paint", 1)
	eid, images := f.entry(t, pid, sid, 2)
	f.objects.FailDelete(func(string) error { return errors.New("permission revoked") })

	rep, err := f.c.DeleteStepWithReport(context.Background(), pid, sid)
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 2, rep.ObjectDeleteFailures)
	assert.Equal(t, 0, rep.ObjectsDeleted)
	assert.False(t, f.exists(t, models.EntryPath(pid, eid)))
	assert.False(t, f.exists(t, models.StepPath(pid, sid)))
	assert.True(t, f.hasObject(images[0]), "failed deletes leave the object for the namespace sweep")
}

func TestDeleteStep_DocumentDeleteFailureAbortsStage(t *testing.T) {
	f := newFixture(t)
	pid := f.product(t, "Bench")
	sid := f.step(t, pid, "Plane", 1)
	eid, _ := f.entry(t, pid, sid, 1)
	boom := errors.New("deadline exceeded")
	f.docs.FailDelete(func(path string) error {
		if path == models.EntryPath(pid, eid) {
			return boom
		}
		return nil
	})

	rep, err := f.c.DeleteStepWithReport(context.Background(), pid, sid)
	require.Error(t, err)

	assert.ErrorIs(t, err, store.ErrDocumentWriteFailed)
	assert.ErrorIs(t, err, boom)
	var dwf *store.DocumentWriteFailed
	require.True(t, errors.As(err, &dwf))
	assert.Equal(t, models.EntryPath(pid, eid), dwf.Path)
	assert.Equal(t, StateDeletingLinkedEntries, rep.State)
	assert.True(t, f.exists(t, models.StepPath(pid, sid)), "the step survives an aborted stage")
}

func TestDeleteProduct_RemovesEverythingEvenWhenImageDeletesFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.product(t, "Wardrobe")
	other := f.product(t, "Desk")
	s1 := f.step(t, pid, "Cut", 1)
	s2 := f.step(t, pid, "Sand", 2)
	f.entry(t, pid, s1, 2)
	f.entry(t, pid, s2, 1)
	f.entry(t, pid, "", 1)
	_, otherImages := f.entry(t, other, "", 1)
	// Objects whose reference was lost, one of them nested deeper.
	f.objects.Seed(store.Join(upload.NamespacePrefix(pid), "no-task", "1_lost.jpg"), []byte("lost"))
	f.objects.Seed(store.Join(upload.NamespacePrefix(pid), "x", "y", "z.jpg"), []byte("deep"))
	f.objects.Seed(store.Join(upload.ReportPrefix(pid), "1717228800000.pdf"), []byte("report"))
	f.objects.Seed(store.Join(upload.ReportPrefix(other), "1717228800000.pdf"), []byte("report"))
	// Entry photos are named photo_N.jpg; each fails on its first delete.
	f.objects.FailDelete(failOnceMatching("photo_"))

	rep, err := f.c.DeleteProductWithReport(ctx, pid)
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 3, rep.EntriesDeleted)
	assert.Equal(t, 2, rep.StepsDeleted)
	assert.Equal(t, 4, rep.ObjectDeleteFailures)
	assert.Equal(t, 7, rep.SweptObjects)

	steps, err := f.docs.List(ctx, models.StepsCollection(pid), store.Query{})
	require.NoError(t, err)
	assert.Empty(t, steps)
	entries, err := f.docs.List(ctx, models.EntriesCollection(pid), store.Query{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	listing, err := f.objects.ListChildren(ctx, upload.NamespacePrefix(pid))
	require.NoError(t, err)
	assert.Empty(t, listing.Items)
	assert.Empty(t, listing.SubPrefixes)
	assert.False(t, f.exists(t, models.ProductPath(pid)))
	for _, path := range f.objects.Paths() {
		assert.False(t, strings.HasPrefix(path, upload.ReportPrefix(pid)+"/"), path)
	}

	assert.True(t, f.exists(t, models.ProductPath(other)))
	assert.True(t, f.hasObject(otherImages[0]))
	assert.True(t, f.hasObject(store.Join(upload.ReportPrefix(other), "1717228800000.pdf")))
}

func TestDeleteProduct_ProductDocumentFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	pid := f.product(t, "Cabinet")
	f.step(t, pid, "Assemble", 1)
	f.docs.FailDelete(func(path string) error {
		if path == models.ProductPath(pid) {
			return errors.New("aborted")
		}
		return nil
	})

	rep, err := f.c.DeleteProductWithReport(context.Background(), pid)
	require.Error(t, err)

	assert.ErrorIs(t, err, store.ErrDocumentWriteFailed)
	assert.Equal(t, StateDeletingProductDoc, rep.State)
	assert.Equal(t, 1, rep.StepsDeleted)
	assert.True(t, f.exists(t, models.ProductPath(pid)))
}

func TestDeleteProduct_IgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	pid := f.product(t, "Stool")
	_, images := f.entry(t, pid, "", 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.c.DeleteProduct(ctx, pid))
	assert.False(t, f.exists(t, models.ProductPath(pid)))
	assert.False(t, f.hasObject(images[1]))
}

func TestDeleteProduct_ConcurrentCallsAllSucceed(t *testing.T) {
	f := newFixture(t)
	pid := f.product(t, "Bed")
	sid := f.step(t, pid, "Frame", 1)
	for i := 0; i < 5; i++ {
		f.entry(t, pid, sid, 2)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 9)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.c.DeleteProduct(context.Background(), pid)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- f.c.DeleteStep(context.Background(), pid, sid)
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Empty(t, f.objects.Paths())
	assert.Equal(t, 0, f.docs.Len(models.EntriesCollection(pid)))
	assert.Equal(t, 0, f.c.locks.held())
}

// gatedObjects blocks the first Delete until released.
type gatedObjects struct {
	store.ObjectStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedObjects) Delete(ctx context.Context, pathOrAddress string) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.ObjectStore.Delete(ctx, pathOrAddress)
}

func TestCascadesOnOneProductDoNotInterleave(t *testing.T) {
	f := newFixture(t)
	gate := &gatedObjects{ObjectStore: f.objects, entered: make(chan struct{}), release: make(chan struct{})}
	c := NewCoordinator(f.docs, gate, nil)
	pid := f.product(t, "Door")
	sid := f.step(t, pid, "Hinges", 1)
	f.entry(t, pid, sid, 1)
	eid, _ := f.entry(t, pid, "", 1)

	go func() { _ = c.DeleteStep(context.Background(), pid, sid) }()
	<-gate.entered

	done := make(chan error, 1)
	go func() { done <- c.DeleteEntry(context.Background(), pid, eid) }()

	finished := func() bool {
		select {
		case err := <-done:
			done <- err
			return true
		default:
			return false
		}
	}
	assert.Never(t, finished, 50*time.Millisecond, 5*time.Millisecond)
	close(gate.release)
	require.Eventually(t, finished, time.Second, 5*time.Millisecond)
	require.NoError(t, <-done)
	assert.False(t, f.exists(t, models.EntryPath(pid, eid)))
}

func TestDeleteEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.product(t, "Lamp")
	eid, images := f.entry(t, pid, "", 3)
	keep, keepImages := f.entry(t, pid, "", 1)

	rep, err := f.c.DeleteEntryWithReport(ctx, pid, eid)
	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 1, rep.EntriesDeleted)
	assert.Equal(t, 3, rep.ObjectsDeleted)
	for _, img := range images {
		assert.False(t, f.hasObject(img))
	}
	assert.True(t, f.exists(t, models.EntryPath(pid, keep)))
	assert.True(t, f.hasObject(keepImages[0]))

	rep, err = f.c.DeleteEntryWithReport(ctx, pid, eid)
	require.NoError(t, err)
	assert.Equal(t, &Report{State: StateDone}, rep)
}

func TestSweep_DepthFirstThroughNestedPrefixes(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{
		"uploads/p1/a.jpg",
		"uploads/p1/s1/1_b.jpg",
		"uploads/p1/s1/2_c.jpg",
		"uploads/p1/no-task/3_d.jpg",
		"uploads/p1/x/y/z/e.jpg",
		"uploads/p10/keep.jpg",
	} {
		f.objects.Seed(p, []byte(p))
	}
	f.objects.FailDelete(func(path string) error {
		if path == "uploads/p1/s1/2_c.jpg" {
			return errors.New("locked")
		}
		return nil
	})

	n, err := f.c.Sweep(context.Background(), "uploads/p1")
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"uploads/p1/s1/2_c.jpg", "uploads/p10/keep.jpg"}, f.objects.Paths())
}

func TestSweep_EmptyNamespace(t *testing.T) {
	f := newFixture(t)
	n, err := f.c.Sweep(context.Background(), "uploads/missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRequiredIdentifiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Error(t, f.c.DeleteStep(ctx, "", "s"))
	assert.Error(t, f.c.DeleteStep(ctx, "p", ""))
	assert.Error(t, f.c.DeleteProduct(ctx, ""))
	assert.Error(t, f.c.DeleteEntry(ctx, "p", ""))
}
