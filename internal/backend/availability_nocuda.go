//go:build !cuda

package backend

func Has(string) bool {
	return false
}
