// Package stats holds the order statistics used to derive trip-duration bounds.
//
// Sorting is a hand-rolled partition-exchange sort with a deterministic pivot (the
// last element of the active range). Average cost is O(n log n); already-sorted or
// all-equal input degrades to O(n²) comparisons. Callers feed it bounded samples
// (tens of thousands of values), never adversarial input.
package stats

// Sort sorts xs ascending in place.
func Sort(xs []float64) {
	if len(xs) < 2 {
		return
	}
	quicksort(xs, 0, len(xs)-1)
}

// quicksort sorts xs[low..high]. It recurses into the smaller partition and loops over
// the larger one, so stack depth stays logarithmic even when the pivot is a bad split.
func quicksort(xs []float64, low, high int) {
	for low < high {
		p := partition(xs, low, high)
		if p-low < high-p {
			quicksort(xs, low, p-1)
			low = p + 1
		} else {
			quicksort(xs, p+1, high)
			high = p - 1
		}
	}
}

// partition is the Lomuto scheme: xs[high] is the pivot, every element <= pivot is
// moved before it, and the pivot's final index is returned.
func partition(xs []float64, low, high int) int {
	pivot := xs[high]
	i := low - 1
	for j := low; j < high; j++ {
		if xs[j] <= pivot {
			i++
			xs[i], xs[j] = xs[j], xs[i]
		}
	}
	xs[i+1], xs[high] = xs[high], xs[i+1]
	return i + 1
}
