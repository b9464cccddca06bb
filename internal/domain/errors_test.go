package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestInsufficientStockError_Message(t *testing.T) {
	err := &InsufficientStockError{ProductID: "product-2", Requested: 5, Available: 2}

	// Сообщение обязано содержать доступный остаток.
	if !strings.Contains(err.Error(), "only 2 available") {
		t.Fatalf("message must report available stock: %q", err.Error())
	}
	if !IsInsufficientStock(err) {
		t.Fatalf("IsInsufficientStock must match the typed error")
	}
	if !IsInsufficientStock(fmt.Errorf("add item: %w", err)) {
		t.Fatalf("IsInsufficientStock must see through wrapping")
	}
	if IsInsufficientStock(errors.New("other")) {
		t.Fatalf("IsInsufficientStock must not match unrelated errors")
	}
}

func TestMalformedProductError(t *testing.T) {
	err := &MalformedProductError{Issues: []error{ErrProductIDRequired, ErrProductPriceRequired}}

	if !IsMalformedProduct(err) {
		t.Fatalf("IsMalformedProduct must match the typed error")
	}
	if !errors.Is(err, ErrProductIDRequired) {
		t.Fatalf("errors.Is must reach individual issues")
	}
	if !errors.Is(err, ErrProductPriceRequired) {
		t.Fatalf("errors.Is must reach every issue")
	}
	if errors.Is(err, ErrProductStockNegative) {
		t.Fatalf("errors.Is must not match absent issues")
	}
	if !strings.Contains(err.Error(), "malformed product") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestIdempotencyStatusValid(t *testing.T) {
	valid := []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed}
	for _, status := range valid {
		if !status.Valid() {
			t.Fatalf("status %q must be valid", status)
		}
	}
	if IdempotencyStatus("unknown").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}
