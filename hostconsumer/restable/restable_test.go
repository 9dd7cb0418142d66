package restable

import (
	"testing"

	"github.com/templarsco/pvgpu/wire"
)

func TestCreateResourceRejectsZeroAndDuplicateIDs(t *testing.T) {
	tbl := New()
	if kind := tbl.CreateResource(0, wire.ResourceDesc{}); kind != wire.ErrInvalidParameter {
		t.Fatalf("CreateResource(0) = %v, want INVALID_PARAMETER", kind)
	}
	if kind := tbl.CreateResource(1, wire.ResourceDesc{Width: 64}); kind != wire.Success {
		t.Fatalf("CreateResource(1) = %v, want SUCCESS", kind)
	}
	if kind := tbl.CreateResource(1, wire.ResourceDesc{}); kind != wire.ErrInvalidParameter {
		t.Fatalf("CreateResource(1) duplicate = %v, want INVALID_PARAMETER", kind)
	}
	desc, ok := tbl.Resource(1)
	if !ok || desc.Width != 64 {
		t.Fatalf("Resource(1) = %+v, %v", desc, ok)
	}
}

func TestDestroyUnknownIDFails(t *testing.T) {
	tbl := New()
	if kind := tbl.DestroyResource(42); kind != wire.ErrResourceNotFound {
		t.Fatalf("DestroyResource(42) = %v, want RESOURCE_NOT_FOUND", kind)
	}
	if kind := tbl.DestroyState(42); kind != wire.ErrResourceNotFound {
		t.Fatalf("DestroyState(42) = %v, want RESOURCE_NOT_FOUND", kind)
	}
	if kind := tbl.DestroyView(42); kind != wire.ErrResourceNotFound {
		t.Fatalf("DestroyView(42) = %v, want RESOURCE_NOT_FOUND", kind)
	}
	if kind := tbl.DestroyShader(42); kind != wire.ErrResourceNotFound {
		t.Fatalf("DestroyShader(42) = %v, want RESOURCE_NOT_FOUND", kind)
	}
}

func TestExistsIsPerCategoryAndRejectsZero(t *testing.T) {
	tbl := New()
	tbl.CreateResource(1, wire.ResourceDesc{})
	tbl.CreateView(wire.CmdCreateRenderTargetView, 1)

	if !tbl.Exists(CategoryResource, 1) {
		t.Fatal("resource 1 should exist in CategoryResource")
	}
	if tbl.Exists(CategoryState, 1) {
		t.Fatal("id 1 was never created as a state object")
	}
	if !tbl.Exists(CategoryView, 1) {
		t.Fatal("view 1 should exist in CategoryView")
	}
	if tbl.Exists(CategoryResource, 0) {
		t.Fatal("id 0 must never be considered live (reserved unbind handle)")
	}
}

func TestResetClearsAllCategories(t *testing.T) {
	tbl := New()
	tbl.CreateResource(1, wire.ResourceDesc{})
	tbl.CreateState(wire.CmdCreateBlendState, 2)
	tbl.CreateView(wire.CmdCreateRenderTargetView, 3)
	tbl.CreateShader(4, wire.StateDesc{})

	tbl.Reset()

	resources, states, views, shaders := tbl.Counts()
	if resources != 0 || states != 0 || views != 0 || shaders != 0 {
		t.Fatalf("Counts after Reset = %d,%d,%d,%d, want all zero", resources, states, views, shaders)
	}
	if tbl.Exists(CategoryResource, 1) {
		t.Fatal("resource 1 should no longer exist after Reset")
	}
}

func TestCategoryString(t *testing.T) {
	cases := map[Category]string{
		CategoryResource: "resource",
		CategoryState:    "state",
		CategoryView:     "view",
		CategoryShader:   "shader",
		Category(99):     "unknown",
	}
	for cat, want := range cases {
		if got := cat.String(); got != want {
			t.Fatalf("Category(%d).String() = %q, want %q", cat, got, want)
		}
	}
}
