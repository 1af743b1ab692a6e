// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package piecerequest

import (
	"github.com/dung-h/LikeTorrent-242/utils/heap"
	"github.com/dung-h/LikeTorrent-242/utils/syncutil"
)

// unavailableAvailability substitutes for an availability count of zero.
// Pieces no known peer holds sort to the back of the queue so workers spend
// their time on pieces which can actually be fetched.
const unavailableAvailability = 1000

// rarestFirstOrder returns pieces ordered by ascending availability, with
// ties broken by ascending piece index. numPeersByPiece holds, for each
// piece, the number of peers whose bitfield claims it.
func rarestFirstOrder(pieces []int, numPeersByPiece syncutil.Counters) []int {
	n := numPeersByPiece.Len()
	q := heap.NewPriorityQueue()
	for _, i := range pieces {
		avail := numPeersByPiece.Get(i)
		if avail <= 0 {
			avail = unavailableAvailability
		}
		q.Push(&heap.Item{
			Value:    i,
			Priority: avail*(n+1) + i,
		})
	}
	ordered := make([]int, 0, len(pieces))
	for q.Len() > 0 {
		item, err := q.Pop()
		if err != nil {
			break
		}
		ordered = append(ordered, item.Value.(int))
	}
	return ordered
}
