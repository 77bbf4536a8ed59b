package vectorstore

import (
	"errors"
	"testing"
)

type fixedDim int

func (d fixedDim) Dimension() int { return int(d) }

func TestValidateSlug(t *testing.T) {
	valid := []string{
		"acme",
		"bursa-metropolitan-municipality",
		"t1",
		"0zone",
	}
	for _, slug := range valid {
		if err := ValidateSlug(slug); err != nil {
			t.Errorf("ValidateSlug(%q) = %v, want nil", slug, err)
		}
	}

	invalid := []string{
		"",
		"-leading-hyphen",
		"UpperCase",
		"has space",
		"has_underscore",
		"dot.slug",
		"../../etc/passwd",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", // 64 chars
	}
	for _, slug := range invalid {
		err := ValidateSlug(slug)
		if !errors.Is(err, ErrInvalidTenant) {
			t.Errorf("ValidateSlug(%q) = %v, want ErrInvalidTenant", slug, err)
		}
	}
}

func TestPolicy_CollectionName(t *testing.T) {
	p, err := NewPolicy(fixedDim(4))
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	name, err := p.CollectionName("acme")
	if err != nil {
		t.Fatalf("CollectionName() error = %v", err)
	}
	if name != "tenant_acme" {
		t.Errorf("CollectionName() = %q, want tenant_acme", name)
	}

	if _, err := p.CollectionName("Bad Slug"); !errors.Is(err, ErrInvalidTenant) {
		t.Errorf("CollectionName() error = %v, want ErrInvalidTenant", err)
	}
}

func TestTenantFromCollection(t *testing.T) {
	if slug, ok := TenantFromCollection("tenant_acme"); !ok || slug != "acme" {
		t.Errorf("TenantFromCollection(tenant_acme) = %q, %v", slug, ok)
	}
	if _, ok := TenantFromCollection("other_acme"); ok {
		t.Error("TenantFromCollection(other_acme) = ok, want false")
	}
	if _, ok := TenantFromCollection("tenant_Bad Slug"); ok {
		t.Error("TenantFromCollection with invalid slug = ok, want false")
	}
}

func TestPolicy_TagPayload(t *testing.T) {
	p, _ := NewPolicy(fixedDim(4))

	t.Run("stamps tenant tag", func(t *testing.T) {
		got := p.TagPayload("acme", map[string]any{"text": "hello"})
		if got[TenantTagKey] != "acme" {
			t.Errorf("tag = %v, want acme", got[TenantTagKey])
		}
		if got["text"] != "hello" {
			t.Errorf("text = %v, want hello", got["text"])
		}
	})

	t.Run("overwrites caller-supplied tag", func(t *testing.T) {
		got := p.TagPayload("acme", map[string]any{TenantTagKey: "victim"})
		if got[TenantTagKey] != "acme" {
			t.Errorf("tag = %v, want acme (caller value must be overwritten)", got[TenantTagKey])
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := map[string]any{"k": "v"}
		p.TagPayload("acme", in)
		if _, ok := in[TenantTagKey]; ok {
			t.Error("input payload was mutated")
		}
	})
}

func TestPolicy_MergeFilters(t *testing.T) {
	p, _ := NewPolicy(fixedDim(4))

	t.Run("adds tenant condition", func(t *testing.T) {
		got := p.MergeFilters("acme", map[string]any{"analysis_type": "monthly"})
		if got[TenantTagKey] != "acme" {
			t.Errorf("tenant filter = %v, want acme", got[TenantTagKey])
		}
		if got["analysis_type"] != "monthly" {
			t.Errorf("analysis_type = %v, want monthly", got["analysis_type"])
		}
	})

	t.Run("tenant condition wins over caller value", func(t *testing.T) {
		got := p.MergeFilters("acme", map[string]any{TenantTagKey: "victim"})
		if got[TenantTagKey] != "acme" {
			t.Errorf("tenant filter = %v, want acme", got[TenantTagKey])
		}
	})
}

func TestPolicy_VerifyRecord(t *testing.T) {
	p, _ := NewPolicy(fixedDim(4))

	if err := p.VerifyRecord("acme", map[string]any{TenantTagKey: "acme"}); err != nil {
		t.Errorf("matching tag: error = %v, want nil", err)
	}

	// Pre-tagging legacy records have no tag at all.
	if err := p.VerifyRecord("acme", map[string]any{"text": "x"}); err != nil {
		t.Errorf("missing tag: error = %v, want nil", err)
	}

	err := p.VerifyRecord("acme", map[string]any{TenantTagKey: "other"})
	if !errors.Is(err, ErrIsolationViolation) {
		t.Errorf("mismatched tag: error = %v, want ErrIsolationViolation", err)
	}
}
