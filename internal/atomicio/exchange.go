package atomicio

import (
	"fmt"
	"os"
)

// exchangeByRename swaps a and b with three renames. There is a short window where b
// is absent; it is used only where the kernel or filesystem cannot exchange atomically.
func exchangeByRename(a, b string) error {
	hold := a + ".old"
	if err := os.Rename(b, hold); err != nil {
		return fmt.Errorf("move aside %s: %w", b, err)
	}
	if err := os.Rename(a, b); err != nil {
		_ = os.Rename(hold, b)
		return fmt.Errorf("move into %s: %w", b, err)
	}
	if err := os.Rename(hold, a); err != nil {
		return fmt.Errorf("park old %s: %w", b, err)
	}
	return nil
}
