package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/go-lookbook"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, dbType, err := Open("sqlite://" + filepath.Join(t.TempDir(), "looks.db"))
	if err != nil {
		t.Fatal(err)
	}
	if dbType != "sqlite" {
		t.Fatalf("dbType = %q, want sqlite", dbType)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	s, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func row(url, title string) lookbook.Row {
	return lookbook.Row{
		lookbook.IdentityColumn: url,
		"Title":                 title,
		"Alt Text":              "alt " + title,
		"Credit":                "Studio K",
	}
}

func TestStore_AppendAndList(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.ListExisting(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty store: %v, %v", got, err)
	}

	if err := s.AppendRows(ctx, []lookbook.Row{row("https://a.example/1.jpg", "One"), row("https://a.example/2.jpg", "Two")}); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	got, err = s.ListExisting(ctx)
	if err != nil {
		t.Fatalf("ListExisting: %v", err)
	}
	if strings.Join(got, "|") != "https://a.example/1.jpg|https://a.example/2.jpg" {
		t.Errorf("ListExisting = %q", got)
	}

	var rec LookRow
	if err := s.db.Where("image_url = ?", "https://a.example/2.jpg").First(&rec).Error; err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Two" || rec.AltText != "alt Two" || rec.Credit != "Studio K" {
		t.Errorf("stored row = %+v", rec)
	}
}

func TestStore_AppendIgnoresKnownIdentity(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendRows(ctx, []lookbook.Row{row("https://a.example/1.jpg", "First")}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendRows(ctx, []lookbook.Row{row("https://a.example/1.jpg", "Second")}); err != nil {
		t.Fatalf("AppendRows duplicate: %v", err)
	}

	var count int64
	s.db.Model(&LookRow{}).Count(&count)
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestOpen_UnsupportedDSN(t *testing.T) {
	t.Parallel()
	for _, dsn := range []string{"", "mysql://root@tcp(localhost)/db", "looks.db"} {
		if _, _, err := Open(dsn); err == nil {
			t.Errorf("Open(%q) succeeded, want error", dsn)
		}
	}
}
