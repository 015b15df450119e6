package channels

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ledgergate/ledgergate/internal/db"
	"gorm.io/gorm"
)

func setupChannelsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:channels_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestNormalizeBaseURL(t *testing.T) {
	got, errNormalize := NormalizeBaseURL("https://api.example.com/v1/")
	if errNormalize != nil || got != "https://api.example.com/v1" {
		t.Fatalf("normalize = %q, %v", got, errNormalize)
	}

	for _, bad := range []string{"", "ftp://example.com", "https://", "not a url at all ::"} {
		if _, errBad := NormalizeBaseURL(bad); !errors.Is(errBad, ErrInvalidBaseURL) {
			t.Fatalf("NormalizeBaseURL(%q) err = %v", bad, errBad)
		}
	}
}

func TestPickForGroupPriorityAndGroups(t *testing.T) {
	conn := setupChannelsDB(t)
	ctx := context.Background()

	low, errCreate := Create(ctx, conn, 1, "low-priority", "https://low.example.com", "sk-low", "default", 1)
	if errCreate != nil {
		t.Fatalf("create low: %v", errCreate)
	}
	high, errCreate := Create(ctx, conn, 1, "high-priority", "https://high.example.com", "sk-high", "default", 9)
	if errCreate != nil {
		t.Fatalf("create high: %v", errCreate)
	}
	if _, errCreate = Create(ctx, conn, 1, "pro-only", "https://pro.example.com", "sk-pro", "pro", 99); errCreate != nil {
		t.Fatalf("create pro: %v", errCreate)
	}

	picked, errPick := PickForGroup(ctx, conn, 1, "default")
	if errPick != nil {
		t.Fatalf("pick: %v", errPick)
	}
	if picked == nil || picked.ID != high.ID {
		t.Fatalf("picked %+v, want highest-priority default channel", picked)
	}

	// The pro group bypasses the default channels.
	picked, errPick = PickForGroup(ctx, conn, 1, "pro")
	if errPick != nil || picked == nil || picked.Name != "pro-only" {
		t.Fatalf("pro pick = %+v, %v", picked, errPick)
	}

	// Disabling the winner falls back to the next by priority.
	enabled := false
	if _, errApply := Apply(ctx, conn, 1, high.ID, Update{Enabled: &enabled}); errApply != nil {
		t.Fatalf("disable high: %v", errApply)
	}
	picked, errPick = PickForGroup(ctx, conn, 1, "default")
	if errPick != nil || picked == nil || picked.ID != low.ID {
		t.Fatalf("fallback pick = %+v, %v", picked, errPick)
	}
}

func TestPickForGroupWildcard(t *testing.T) {
	conn := setupChannelsDB(t)
	ctx := context.Background()

	if _, errCreate := Create(ctx, conn, 1, "catch-all", "https://any.example.com", "sk-any", "*", 0); errCreate != nil {
		t.Fatalf("create wildcard: %v", errCreate)
	}

	picked, errPick := PickForGroup(ctx, conn, 1, "some-group")
	if errPick != nil || picked == nil || picked.Name != "catch-all" {
		t.Fatalf("wildcard pick = %+v, %v", picked, errPick)
	}
}

func TestPickForGroupNoneConfigured(t *testing.T) {
	conn := setupChannelsDB(t)
	picked, errPick := PickForGroup(context.Background(), conn, 1, "default")
	if errPick != nil {
		t.Fatalf("pick: %v", errPick)
	}
	if picked != nil {
		t.Fatalf("picked %+v from empty table", picked)
	}
}

func TestPickForGroupOrgScoped(t *testing.T) {
	conn := setupChannelsDB(t)
	ctx := context.Background()
	if _, errCreate := Create(ctx, conn, 2, "other-org", "https://other.example.com", "sk-o", "default", 0); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	picked, errPick := PickForGroup(ctx, conn, 1, "default")
	if errPick != nil || picked != nil {
		t.Fatalf("cross-org pick = %+v, %v", picked, errPick)
	}
}

func TestApplyAndDelete(t *testing.T) {
	conn := setupChannelsDB(t)
	ctx := context.Background()

	row, errCreate := Create(ctx, conn, 1, "editable", "https://edit.example.com", "sk-edit", "", 0)
	if errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	if row.GroupName != "default" {
		t.Fatalf("group defaulted to %q", row.GroupName)
	}

	newURL := "https://changed.example.com/"
	priority := 5
	updated, errApply := Apply(ctx, conn, 1, row.ID, Update{BaseURL: &newURL, Priority: &priority})
	if errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}
	if updated.BaseURL != "https://changed.example.com" || updated.Priority != 5 {
		t.Fatalf("updated = %+v", updated)
	}

	badURL := "nope"
	if _, errApply = Apply(ctx, conn, 1, row.ID, Update{BaseURL: &badURL}); !errors.Is(errApply, ErrInvalidBaseURL) {
		t.Fatalf("bad url err = %v", errApply)
	}

	if errDelete := Delete(ctx, conn, 1, row.ID); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if errDelete := Delete(ctx, conn, 1, row.ID); !errors.Is(errDelete, ErrNotFound) {
		t.Fatalf("second delete err = %v", errDelete)
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey("sk-1234567890abcdef"); got != "sk-123...cdef" {
		t.Fatalf("mask = %q", got)
	}
	if got := MaskAPIKey("short"); got != "********" {
		t.Fatalf("short mask = %q", got)
	}
}
