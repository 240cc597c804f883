package fs

import (
	"testing"

	"xattrfs/internal/source"
)

func TestNodeTable(t *testing.T) {
	xfs, _ := setupTestFS(t, Options{})
	table := xfs.nodes

	a := table.lookup(source.NewPath("a"), true, xfs.newNode)
	ab := table.lookup(source.NewPath("a/b"), false, xfs.newNode)
	abc := table.lookup(source.NewPath("a/bc"), false, xfs.newNode)
	dst := table.lookup(source.NewPath("z/old"), false, xfs.newNode)

	t.Run("KindChange", func(t *testing.T) {
		again := table.lookup(source.NewPath("a/b"), true, xfs.newNode)
		if again == ab {
			t.Error("Expected a new node when the kind changes")
		}
		if _, ok := again.(*Dir); !ok {
			t.Errorf("Expected *Dir, got %T", again)
		}
		ab = table.lookup(source.NewPath("a/b"), false, xfs.newNode)
	})

	table.rename(source.NewPath("a"), source.NewPath("z"))

	if got := a.base().Path().String(); got != "z" {
		t.Errorf("Expected z, got %q", got)
	}
	if got := ab.base().Path().String(); got != "z/b" {
		t.Errorf("Expected z/b, got %q", got)
	}
	if got := abc.base().Path().String(); got != "z/bc" {
		t.Errorf("Expected z/bc, got %q", got)
	}
	replacement := table.lookup(source.NewPath("z/old"), false, xfs.newNode)
	if replacement == dst {
		t.Error("Replaced destination node should have been dropped")
	}

	table.forget(dst.base())
	if found := table.lookup(source.NewPath("z/old"), false, xfs.newNode); found != replacement {
		t.Error("Forgetting a stale node must not drop the live one")
	}

	ab.base().Forget()
	if found := table.lookup(source.NewPath("z/b"), false, xfs.newNode); found == ab {
		t.Error("Forgotten node should not be returned again")
	}

	table.remove(source.NewPath("z/bc"))
	if found := table.lookup(source.NewPath("z/bc"), false, xfs.newNode); found == abc {
		t.Error("Removed node should not be returned again")
	}

	// z, z/b, z/bc, z/old
	if got := table.size(); got != 4 {
		t.Errorf("Expected 4 live nodes, got %d", got)
	}
}
