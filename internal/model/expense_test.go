package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpenseView_HeadroomToMax(t *testing.T) {
	tests := []struct {
		name  string
		spent uint64
		max   uint64
		want  uint64
	}{
		{"untouched", 0, 1100, 1100},
		{"partly spent", 400, 1100, 700},
		{"at max", 1100, 1100, 0},
		{"past max", 1200, 1100, 0},
	}
	for _, tt := range tests {
		v := ExpenseView{ActualSpent: tt.spent, MaxAllowed: tt.max}
		if got := v.HeadroomToMax(); got != tt.want {
			t.Errorf("%s: HeadroomToMax() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestExpenseView_SpentPercent(t *testing.T) {
	assert.Equal(t, "80", ExpenseView{ActualSpent: 800, ApprovedAmount: 1000}.SpentPercent().String())
	assert.Equal(t, "33.3", ExpenseView{ActualSpent: 1, ApprovedAmount: 3}.SpentPercent().String())
	assert.True(t, ExpenseView{ActualSpent: 5}.SpentPercent().IsZero())
}
