package bftw

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type visit struct {
	path  string
	kind  VisitKind
	depth int
	err   error
}

func collect(cfg Config) ([]visit, WalkResult, error) {
	var out []visit
	res, err := Walk(cfg, func(e *Entry) Control {
		out = append(out, visit{path: e.Path(), kind: e.Visit, depth: e.Depth, err: e.Err})
		return Continue
	})
	return out, res, err
}

func mustMkdir(t *testing.T, elem ...string) string {
	t.Helper()
	p := filepath.Join(elem...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func mustWriteFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestWalkSingleFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "lonely.txt")
	mustWriteFile(t, f)

	visits, res, err := collect(Config{Paths: []string{f}, NThreads: 2, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)
	require.False(t, res.Stopped)
	require.Len(t, visits, 1)
	assert.Equal(t, Leaf, visits[0].kind)
	assert.Equal(t, f, visits[0].path)
	assert.NoError(t, visits[0].err)
}

func TestWalkTwoRootsOneMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.txt")
	mustWriteFile(t, present)
	missing := filepath.Join(dir, "does-not-exist")

	visits, _, err := collect(Config{Paths: []string{present, missing}, NThreads: 2, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)
	require.Len(t, visits, 2)

	byPath := map[string]visit{}
	for _, v := range visits {
		byPath[v.path] = v
	}
	assert.NoError(t, byPath[present].err)
	assert.Error(t, byPath[missing].err)
}

func TestWalkBFSLevelOrdering(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir, "a")
	mustMkdir(t, dir, "b")
	mustMkdir(t, dir, "a", "aa")
	mustWriteFile(t, filepath.Join(dir, "a", "aa", "leaf.txt"))

	visits, _, err := collect(Config{Paths: []string{dir}, NThreads: 2, Strategy: StrategyBFS, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)

	lastDepth := -1
	sawDeeperBeforeShallower := false
	for _, v := range visits {
		if v.depth < lastDepth {
			sawDeeperBeforeShallower = true
		}
		if v.depth > lastDepth+1 {
			t.Fatalf("depth jumped from %d to %d without visiting the level between", lastDepth, v.depth)
		}
		lastDepth = v.depth
	}
	assert.False(t, sawDeeperBeforeShallower, "BFS must not visit a deeper entry before a shallower one at an earlier position overall")
}

func TestWalkPruneSkipsDescendants(t *testing.T) {
	dir := t.TempDir()
	pruned := mustMkdir(t, dir, "pruned")
	mustWriteFile(t, filepath.Join(pruned, "hidden.txt"))
	mustWriteFile(t, filepath.Join(dir, "visible.txt"))

	var paths []string
	_, _, err := Walk(Config{Paths: []string{dir}, NThreads: 2, Flags: FlagHonorPrune, MaxDepth: UnlimitedDepth}, func(e *Entry) Control {
		paths = append(paths, e.Path())
		if e.Path() == pruned {
			return Prune
		}
		return Continue
	})
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Contains(t, paths, pruned)
	assert.NotContains(t, paths, filepath.Join(pruned, "hidden.txt"))
	assert.Contains(t, paths, filepath.Join(dir, "visible.txt"))
}

func TestWalkStopHaltsTraversal(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"))
	mustWriteFile(t, filepath.Join(dir, "b.txt"))
	mustWriteFile(t, filepath.Join(dir, "c.txt"))

	seen := 0
	res, err := Walk(Config{Paths: []string{dir}, NThreads: 1, MaxDepth: UnlimitedDepth}, func(e *Entry) Control {
		seen++
		return Stop
	})
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 1, seen)
}

func TestWalkPostOrderFiresAfterChildren(t *testing.T) {
	dir := t.TempDir()
	sub := mustMkdir(t, dir, "sub")
	mustWriteFile(t, filepath.Join(sub, "leaf.txt"))

	var order []string
	_, _, err := Walk(Config{Paths: []string{dir}, NThreads: 2, Flags: FlagPostOrder, MaxDepth: UnlimitedDepth}, func(e *Entry) Control {
		order = append(order, e.Visit.String()+":"+e.Path())
		return Continue
	})
	require.NoError(t, err)

	preIdx, postIdx, leafIdx := -1, -1, -1
	for i, o := range order {
		switch o {
		case "pre-order:" + sub:
			preIdx = i
		case "post-order:" + sub:
			postIdx = i
		case "leaf:" + filepath.Join(sub, "leaf.txt"):
			leafIdx = i
		}
	}
	require.NotEqual(t, -1, preIdx)
	require.NotEqual(t, -1, postIdx)
	require.NotEqual(t, -1, leafIdx)
	assert.Less(t, preIdx, leafIdx)
	assert.Less(t, leafIdx, postIdx)
}

func TestWalkMaxDepthStopsDescent(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir, "a", "b")
	mustWriteFile(t, filepath.Join(dir, "a", "b", "deep.txt"))

	visits, _, err := collect(Config{Paths: []string{dir}, NThreads: 2, MaxDepth: 1})
	require.NoError(t, err)

	for _, v := range visits {
		assert.LessOrEqual(t, v.depth, 1)
	}
}

func TestWalkSmallFDCacheCapacity(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 8; i++ {
		sub := mustMkdir(t, dir, "d"+string(rune('0'+i)))
		mustWriteFile(t, filepath.Join(sub, "f.txt"))
	}

	visits, _, err := collect(Config{Paths: []string{dir}, NThreads: 4, FDCacheCapacity: 1, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)
	for _, v := range visits {
		assert.NoError(t, v.err)
	}
	// 8 dirs + 1 root dir + 8 leaves.
	assert.Equal(t, 17, len(visits))
}

func TestWalkMinDepthSuppressesShallowVisits(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "top.txt"))
	sub := mustMkdir(t, dir, "sub")
	mustWriteFile(t, filepath.Join(sub, "nested.txt"))

	visits, _, err := collect(Config{Paths: []string{dir}, NThreads: 2, MinDepth: 1, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)
	for _, v := range visits {
		assert.GreaterOrEqual(t, v.depth, 1)
	}
}

// TestWalkBFSWideFanOutOrdering uses enough same-depth siblings and worker
// threads that, absent admission-order buffering in the engine, STAT/OPEN
// completions racing on the thread pool would be able to deliver a deeper
// entry's callback before a shallower sibling discovered earlier in the
// same pass.
func TestWalkBFSWideFanOutOrdering(t *testing.T) {
	dir := t.TempDir()
	const fanOut = 12
	for i := 0; i < fanOut; i++ {
		sub := mustMkdir(t, dir, "d"+string(rune('a'+i)))
		mustMkdir(t, sub, "nested")
		mustWriteFile(t, filepath.Join(sub, "nested", "leaf.txt"))
	}

	visits, _, err := collect(Config{Paths: []string{dir}, NThreads: 8, Strategy: StrategyBFS, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)

	lastDepth := -1
	for _, v := range visits {
		require.GreaterOrEqual(t, v.depth, lastDepth, "BFS must never deliver a shallower entry after a deeper one: %+v", v)
		require.LessOrEqual(t, v.depth, lastDepth+1, "BFS must not skip a depth level: %+v", v)
		lastDepth = v.depth
	}
	// root + fanOut dirs + fanOut "nested" dirs + fanOut leaves.
	assert.Equal(t, 1+3*fanOut, len(visits))
}

// assertDepthFirstContiguous checks spec property 4's "standard depth-first
// preorder traversal": once a directory's pre-order visit fires, every
// subsequent visit must belong to that directory's subtree until the whole
// subtree is exhausted, regardless of readdir order or which sibling's
// async ops happen to finish first on the worker pool.
func assertDepthFirstContiguous(t *testing.T, visits []visit) {
	t.Helper()
	type open struct {
		path  string
		depth int
	}
	var stack []open
	for _, v := range visits {
		for len(stack) > 0 && v.depth <= stack[len(stack)-1].depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			require.True(t, strings.HasPrefix(v.path, top.path+string(filepath.Separator)),
				"visit %+v is not nested under currently open directory %q: traversal is not depth-first", v, top.path)
		}
		if v.kind == PreOrder {
			stack = append(stack, open{path: v.path, depth: v.depth})
		}
	}
}

func TestWalkDFSStrictPreorder(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		sub := mustMkdir(t, dir, "d"+string(rune('a'+i)))
		mustWriteFile(t, filepath.Join(sub, "leaf1.txt"))
		nested := mustMkdir(t, sub, "nested")
		mustWriteFile(t, filepath.Join(nested, "leaf2.txt"))
	}

	visits, _, err := collect(Config{Paths: []string{dir}, NThreads: 8, Strategy: StrategyDFS, Flags: FlagPostOrder, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)
	assertDepthFirstContiguous(t, visits)
}

func TestWalkIDSVisitsEveryEntryExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir, "a")
	mustMkdir(t, dir, "a", "aa")
	mustWriteFile(t, filepath.Join(dir, "a", "aa", "leaf.txt"))
	mustMkdir(t, dir, "b")
	mustWriteFile(t, filepath.Join(dir, "b", "sibling.txt"))

	visits, res, err := collect(Config{Paths: []string{dir}, NThreads: 4, Strategy: StrategyIDS, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)
	require.False(t, res.Stopped)

	seen := map[string]int{}
	for _, v := range visits {
		seen[v.path]++
	}
	for path, count := range seen {
		assert.Equal(t, 1, count, "path %q visited %d times under IDS, want exactly once", path, count)
	}
	assert.Contains(t, seen, dir)
	assert.Contains(t, seen, filepath.Join(dir, "a", "aa", "leaf.txt"))
	assert.Contains(t, seen, filepath.Join(dir, "b", "sibling.txt"))

	lastDepth := -1
	for _, v := range visits {
		require.GreaterOrEqual(t, v.depth, lastDepth, "IDS must never deliver a shallower entry after a deeper one: %+v", v)
		lastDepth = v.depth
	}
}

func TestWalkEDSVisitsEveryEntryExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	mustMkdir(t, dir, "a")
	mustMkdir(t, dir, "a", "aa", "aaa")
	mustWriteFile(t, filepath.Join(dir, "a", "aa", "aaa", "leaf.txt"))
	mustMkdir(t, dir, "b")
	mustWriteFile(t, filepath.Join(dir, "b", "sibling.txt"))

	visits, res, err := collect(Config{Paths: []string{dir}, NThreads: 4, Strategy: StrategyEDS, MaxDepth: UnlimitedDepth})
	require.NoError(t, err)
	require.False(t, res.Stopped)

	seen := map[string]int{}
	for _, v := range visits {
		seen[v.path]++
	}
	for path, count := range seen {
		assert.Equal(t, 1, count, "path %q visited %d times under EDS, want exactly once", path, count)
	}
	assert.Contains(t, seen, filepath.Join(dir, "a", "aa", "aaa", "leaf.txt"))
	assert.Contains(t, seen, filepath.Join(dir, "b", "sibling.txt"))
}

func TestWalkLazyStatAfterWalkReturns(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "file.txt")
	mustWriteFile(t, f)

	var entry *Entry
	_, _, err := Walk(Config{Paths: []string{dir}, NThreads: 2, MaxDepth: UnlimitedDepth}, func(e *Entry) Control {
		if e.Path() == f {
			entry = e
		}
		return Continue
	})
	require.NoError(t, err)
	require.NotNil(t, entry)

	st, err := entry.Stat()
	require.NoError(t, err)
	assert.True(t, st.IsRegular())
}
