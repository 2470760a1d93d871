package store

import (
	"errors"
	"testing"

	"github.com/zulandar/groupyard/internal/models"
)

func TestAccounts(t *testing.T) {
	s := openTestStore(t)

	added, err := s.AddAccount("+15550001", "sales")
	if err != nil || !added {
		t.Fatalf("AddAccount = %v, %v", added, err)
	}
	added, _ = s.AddAccount("+15550001", "dup")
	if added {
		t.Error("duplicate AddAccount should report false")
	}

	if err := s.SetHasSession("+15550001", true); err != nil {
		t.Fatalf("SetHasSession: %v", err)
	}
	if err := s.SetHasSession("+15550099", true); err != nil {
		t.Fatalf("SetHasSession new account: %v", err)
	}

	accounts, err := s.ListAccounts()
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	for _, a := range accounts {
		if !a.HasSession {
			t.Errorf("%s HasSession = false, want true", a.PhoneNumber)
		}
		if a.PhoneNumber == "+15550001" && a.Label != "sales" {
			t.Errorf("label = %q, want sales", a.Label)
		}
	}

	s.SetHasSession("+15550001", false)
	accounts, _ = s.ListAccounts()
	for _, a := range accounts {
		if a.PhoneNumber == "+15550001" && a.HasSession {
			t.Error("HasSession should be cleared")
		}
	}
}

func TestTemplates(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateTemplate(&models.Template{Name: "x"}); err == nil {
		t.Error("expected error for empty message")
	}

	a := &models.Template{Name: "Promo", Message: "50% off", Category: "marketing"}
	b := &models.Template{Name: "Hi", Message: "hello"}
	if err := s.CreateTemplate(a); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if err := s.CreateTemplate(b); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if b.Category != "general" {
		t.Errorf("default category = %q, want general", b.Category)
	}

	all, _ := s.ListTemplates("")
	if len(all) != 2 || all[0].Name != "Hi" {
		t.Errorf("ListTemplates = %+v", all)
	}
	mk, _ := s.ListTemplates("marketing")
	if len(mk) != 1 || mk[0].ID != a.ID {
		t.Errorf("ListTemplates(marketing) = %+v", mk)
	}

	cats, _ := s.Categories()
	if len(cats) != 2 || cats[0] != "general" || cats[1] != "marketing" {
		t.Errorf("Categories = %v", cats)
	}

	if err := s.UpdateTemplate(a.ID, "Promo", "60% off", "marketing"); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	got, _ := s.GetTemplate(a.ID)
	if got.Message != "60% off" {
		t.Errorf("message = %q", got.Message)
	}

	if err := s.DeleteTemplate(a.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if err := s.DeleteTemplate(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateTemplate(999, "a", "b", "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
}
