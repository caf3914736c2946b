package orderbook

import "github.com/uhyunpark/hyperlicked/pkg/money"

// maxPriceHeap implements heap.Interface for bid prices: the highest price
// is always at index 0, giving O(1) best-bid peek.
type maxPriceHeap []money.Price

func (h maxPriceHeap) Len() int           { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h maxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxPriceHeap) Push(x interface{}) { *h = append(*h, x.(money.Price)) }

func (h *maxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h maxPriceHeap) Peek() (money.Price, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// minPriceHeap implements heap.Interface for ask prices: the lowest price
// is always at index 0.
type minPriceHeap []money.Price

func (h minPriceHeap) Len() int           { return len(h) }
func (h minPriceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minPriceHeap) Push(x interface{}) { *h = append(*h, x.(money.Price)) }

func (h *minPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h minPriceHeap) Peek() (money.Price, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}
