package qkd

import (
	"github.com/alan-christopher/qkd/qkd/bitmap"
)

// Reconcile sifts a transmission down to the positions where both parties
// used the same basis, returning each party's values at those positions in
// their original order. All four sequences must have the same length.
func Reconcile(sendBases, recvBases []Basis, sendVals, recvVals bitmap.Dense) (sender, receiver bitmap.Dense, err error) {
	if err := checkLengths("reconciliation input", len(sendBases), len(recvBases), sendVals.Size(), recvVals.Size()); err != nil {
		return bitmap.Empty(), bitmap.Empty(), err
	}
	mask := siftMask(sendBases, recvBases)
	return bitmap.Select(sendVals, mask), bitmap.Select(recvVals, mask), nil
}

// Matching returns the positions at which both parties chose the same basis.
// The sequences are compared up to the shorter of the two.
func Matching(sendBases, recvBases []Basis) []int {
	var idx []int
	for i := 0; i < len(sendBases) && i < len(recvBases); i++ {
		if sendBases[i] == recvBases[i] {
			idx = append(idx, i)
		}
	}
	return idx
}

func siftMask(sendBases, recvBases []Basis) bitmap.Dense {
	mask := bitmap.NewDense(nil, len(sendBases))
	for _, i := range Matching(sendBases, recvBases) {
		mask.Set(i, true)
	}
	return mask
}
