//go:build !linux

package atomicio

func exchange(a, b string) error {
	return exchangeByRename(a, b)
}
