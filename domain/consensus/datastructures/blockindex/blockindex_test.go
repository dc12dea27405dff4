package blockindex

import (
	"errors"
	"math/big"
	"testing"

	"github.com/utxonode/chaind/domain/consensus/model/externalapi"
	"github.com/utxonode/chaind/domain/consensus/ruleerrors"
	"github.com/utxonode/chaind/domain/consensus/utils/pow"
)

const testBits = 0x207fffff

func makeHeader(parent *externalapi.DomainHash, nonce uint64) *externalapi.DomainBlockHeader {
	return &externalapi.DomainBlockHeader{
		Version:       1,
		ParentHash:    *parent,
		TimeInSeconds: 1_600_000_000 + int64(nonce%1_000_000)*600,
		Bits:          testBits,
		Nonce:         nonce,
	}
}

func newTestIndex(t *testing.T) (*BlockIndex, *Entry) {
	bi := New()
	genesis, err := bi.InsertGenesis(makeHeader(&externalapi.DomainHash{}, 0))
	if err != nil {
		t.Fatalf("InsertGenesis: %s", err)
	}
	return bi, genesis
}

// extend inserts n headers on top of from and advances each of them to
// level. The salt keeps sibling branches distinct.
func extend(t *testing.T, bi *BlockIndex, from *Entry, n int, salt uint64, level Status) []*Entry {
	chain := make([]*Entry, 0, n)
	parent := from
	for i := 0; i < n; i++ {
		entry, err := bi.InsertHeader(makeHeader(parent.Hash(), salt*1_000_000+uint64(i)+1))
		if err != nil {
			t.Fatalf("InsertHeader: %s", err)
		}
		for next := StatusTreeValid; next <= level; next++ {
			markStatus(t, bi, entry, next)
		}
		chain = append(chain, entry)
		parent = entry
	}
	return chain
}

func markStatus(t *testing.T, bi *BlockIndex, entry *Entry, level Status) {
	err := bi.MarkStatus(entry.Hash(), level)
	if err != nil {
		t.Fatalf("MarkStatus(%s, %d): %s", entry, level, err)
	}
}

func markFailed(t *testing.T, bi *BlockIndex, entry *Entry) {
	err := bi.MarkFailed(entry.Hash())
	if err != nil {
		t.Fatalf("MarkFailed(%s): %s", entry, err)
	}
}

func checkError(t *testing.T, testName string, err error, expected error) {
	if !errors.Is(err, expected) {
		t.Fatalf("%s: expected error %s, got %v", testName, expected, err)
	}
}

// checkEntrySet fails unless got and expected hold the same entries, in
// any order.
func checkEntrySet(t *testing.T, testName string, got []*Entry, expected []*Entry) {
	if len(got) != len(expected) {
		t.Fatalf("%s: expected %d entries, got %d: %v", testName, len(expected), len(got), got)
	}
	set := make(map[*Entry]struct{}, len(got))
	for _, entry := range got {
		set[entry] = struct{}{}
	}
	for _, entry := range expected {
		if _, ok := set[entry]; !ok {
			t.Fatalf("%s: entry %s is missing from %v", testName, entry, got)
		}
	}
}

func TestInsertHeader(t *testing.T) {
	bi, genesis := newTestIndex(t)
	if genesis.Status() != StatusScriptsValid {
		t.Fatalf("TestInsertHeader: unexpected genesis status %d", genesis.Status())
	}
	if genesis.Height() != 0 {
		t.Fatalf("TestInsertHeader: unexpected genesis height %d", genesis.Height())
	}

	header := makeHeader(genesis.Hash(), 1)
	entry, err := bi.InsertHeader(header)
	if err != nil {
		t.Fatalf("TestInsertHeader: InsertHeader: %s", err)
	}
	if entry.Height() != 1 {
		t.Fatalf("TestInsertHeader: expected height 1, got %d", entry.Height())
	}
	if entry.Status() != StatusHeaderValid {
		t.Fatalf("TestInsertHeader: expected status %d, got %d", StatusHeaderValid, entry.Status())
	}

	expectedWork := new(big.Int).Add(genesis.Work(), pow.CalculateWork(testBits))
	if expectedWork.Cmp(entry.Work()) != 0 {
		t.Fatalf("TestInsertHeader: expected work %s, got %s", expectedWork, entry.Work())
	}

	found, ok := bi.Lookup(entry.Hash())
	if !ok || found != entry {
		t.Fatalf("TestInsertHeader: Lookup did not return the inserted entry")
	}
	if bi.Parent(entry) != genesis {
		t.Fatalf("TestInsertHeader: the parent of %s is not genesis", entry)
	}

	_, err = bi.InsertHeader(header)
	checkError(t, "TestInsertHeader: duplicate", err, ruleerrors.ErrDuplicateHeader)

	orphan := makeHeader(&externalapi.DomainHash{}, 99)
	orphan.ParentHash = *externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{1})
	_, err = bi.InsertHeader(orphan)
	checkError(t, "TestInsertHeader: orphan", err, ruleerrors.ErrOrphanHeader)

	_, err = bi.InsertGenesis(makeHeader(&externalapi.DomainHash{}, 5))
	if err == nil {
		t.Fatalf("TestInsertHeader: a second genesis was inserted")
	}
}

func TestWorkStrictlyIncreases(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 50, 1, StatusHeaderValid)

	parent := genesis
	for _, entry := range chain {
		expected := new(big.Int).Add(parent.Work(), pow.CalculateWork(entry.Header().Bits))
		if expected.Cmp(entry.Work()) != 0 {
			t.Fatalf("TestWorkStrictlyIncreases: expected work %s for %s, got %s", expected, entry, entry.Work())
		}
		if entry.Height() != parent.Height()+1 {
			t.Fatalf("TestWorkStrictlyIncreases: unexpected height %d for %s", entry.Height(), entry)
		}
		parent = entry
	}
}

func TestSkipHeight(t *testing.T) {
	for height := uint64(0); height < 10_000; height++ {
		skip := skipHeight(height)
		if height < 2 {
			if skip != 0 {
				t.Fatalf("TestSkipHeight: expected 0 for height %d, got %d", height, skip)
			}
			continue
		}
		if skip >= height {
			t.Fatalf("TestSkipHeight: skip height %d of %d is not lower", skip, height)
		}
	}
}

func TestAncestor(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 1000, 1, StatusHeaderValid)
	fork := extend(t, bi, chain[499], 100, 2, StatusHeaderValid)

	all := append([]*Entry{genesis}, chain...)
	tip := chain[len(chain)-1]
	for height := uint64(0); height <= tip.Height(); height += 7 {
		if ancestor := bi.Ancestor(tip, height); ancestor != all[height] {
			t.Fatalf("TestAncestor: expected %s at height %d, got %s", all[height], height, ancestor)
		}
	}
	if bi.Ancestor(tip, tip.Height()) != tip {
		t.Fatalf("TestAncestor: the ancestor at the own height is not the entry itself")
	}
	if ancestor := bi.Ancestor(tip, tip.Height()+1); ancestor != nil {
		t.Fatalf("TestAncestor: expected no ancestor above the tip, got %s", ancestor)
	}

	forkTip := fork[len(fork)-1]
	tests := []struct {
		height   uint64
		expected *Entry
	}{
		{height: chain[499].Height(), expected: chain[499]},
		{height: 123, expected: all[123]},
		{height: fork[10].Height(), expected: fork[10]},
	}
	for _, test := range tests {
		if ancestor := bi.Ancestor(forkTip, test.height); ancestor != test.expected {
			t.Fatalf("TestAncestor: expected %s at height %d of the fork, got %s",
				test.expected, test.height, ancestor)
		}
	}

	if !bi.IsInChainOf(chain[499], forkTip) {
		t.Fatalf("TestAncestor: the fork point is not in the chain of the fork tip")
	}
	if bi.IsInChainOf(chain[500], forkTip) {
		t.Fatalf("TestAncestor: a block after the fork point is in the chain of the fork tip")
	}
}

func TestFindFork(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 20, 1, StatusHeaderValid)
	branch := extend(t, bi, chain[9], 3, 2, StatusHeaderValid)

	tests := []struct {
		name     string
		a, b     *Entry
		expected *Entry
	}{
		{name: "chain tip and branch tip", a: chain[19], b: branch[2], expected: chain[9]},
		{name: "branch tip and chain tip", a: branch[2], b: chain[19], expected: chain[9]},
		{name: "ancestor and descendant", a: chain[5], b: chain[19], expected: chain[5]},
		{name: "genesis", a: genesis, b: branch[0], expected: genesis},
	}
	for _, test := range tests {
		if fork := bi.FindFork(test.a, test.b); fork != test.expected {
			t.Fatalf("TestFindFork: %s: expected %s, got %s", test.name, test.expected, fork)
		}
	}
}

func TestMarkStatus(t *testing.T) {
	bi, genesis := newTestIndex(t)
	entry := extend(t, bi, genesis, 1, 1, StatusHeaderValid)[0]

	err := bi.MarkStatus(entry.Hash(), StatusTransactionsValid)
	checkError(t, "TestMarkStatus: skipping a level", err, ruleerrors.ErrInvalidTransition)

	markStatus(t, bi, entry, StatusTreeValid)
	if entry.Status() != StatusTreeValid {
		t.Fatalf("TestMarkStatus: expected status %d, got %d", StatusTreeValid, entry.Status())
	}

	err = bi.MarkStatus(entry.Hash(), StatusTreeValid)
	checkError(t, "TestMarkStatus: same level", err, ruleerrors.ErrInvalidTransition)

	markFailed(t, bi, entry)
	err = bi.MarkStatus(entry.Hash(), StatusTransactionsValid)
	checkError(t, "TestMarkStatus: failed entry", err, ruleerrors.ErrInvalidTransition)

	unknown := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{7})
	err = bi.MarkStatus(unknown, StatusTreeValid)
	checkError(t, "TestMarkStatus: unknown entry", err, ruleerrors.ErrUnknownBlock)
}

func TestMarkFailedCascades(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 3, 1, StatusTreeValid)
	sibling := extend(t, bi, chain[1], 2, 2, StatusTreeValid)
	if bi.BestHeader() != sibling[1] {
		t.Fatalf("TestMarkFailedCascades: unexpected best header %s", bi.BestHeader())
	}

	markFailed(t, bi, chain[1])

	if chain[0].Status().IsFailed() {
		t.Fatalf("TestMarkFailedCascades: the parent of the failed block is failed")
	}
	if chain[1].Status()&StatusFailedValidation == 0 {
		t.Fatalf("TestMarkFailedCascades: the block is not marked as failing validation")
	}
	for _, descendant := range []*Entry{chain[2], sibling[0], sibling[1]} {
		if descendant.Status()&StatusFailedAncestor == 0 || !descendant.Status().IsFailed() {
			t.Fatalf("TestMarkFailedCascades: descendant %s is not marked as having a failed ancestor",
				descendant)
		}
	}
	if bi.BestHeader() != chain[0] {
		t.Fatalf("TestMarkFailedCascades: expected best header %s, got %s", chain[0], bi.BestHeader())
	}

	late, err := bi.InsertHeader(makeHeader(chain[2].Hash(), 77))
	if err != nil {
		t.Fatalf("TestMarkFailedCascades: InsertHeader: %s", err)
	}
	if !late.Status().IsFailed() {
		t.Fatalf("TestMarkFailedCascades: a header inserted under a failed block is not failed")
	}
}

func TestChainDataAndCandidates(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 3, 1, StatusTreeValid)

	// Bodies arrive out of order: the descendants wait for their parent.
	markStatus(t, bi, chain[2], StatusTransactionsValid)
	markStatus(t, bi, chain[1], StatusTransactionsValid)
	if bi.HasChainData(chain[1]) || bi.HasChainData(chain[2]) {
		t.Fatalf("TestChainDataAndCandidates: chain data is reported without the parent body")
	}
	checkEntrySet(t, "TestChainDataAndCandidates: parent body missing", bi.Candidates(), []*Entry{genesis})

	markStatus(t, bi, chain[0], StatusTransactionsValid)
	for _, entry := range chain {
		if !bi.HasChainData(entry) {
			t.Fatalf("TestChainDataAndCandidates: %s has no chain data", entry)
		}
	}
	checkEntrySet(t, "TestChainDataAndCandidates: all bodies", bi.Candidates(), append([]*Entry{genesis}, chain...))

	bi.PruneCandidates(chain[1])
	checkEntrySet(t, "TestChainDataAndCandidates: pruned", bi.Candidates(), chain[1:])

	markFailed(t, bi, chain[2])
	checkEntrySet(t, "TestChainDataAndCandidates: failed", bi.Candidates(), chain[1:2])

	bi.RebuildCandidates()
	checkEntrySet(t, "TestChainDataAndCandidates: rebuilt", bi.Candidates(),
		[]*Entry{genesis, chain[0], chain[1]})
}

func TestWorkSorterLess(t *testing.T) {
	bi, genesis := newTestIndex(t)
	first := extend(t, bi, genesis, 1, 1, StatusHeaderValid)[0]
	second := extend(t, bi, genesis, 1, 2, StatusHeaderValid)[0]
	longer := extend(t, bi, second, 1, 3, StatusHeaderValid)[0]

	tests := []struct {
		name     string
		a, b     *Entry
		expected bool
	}{
		{name: "equal work, seen later", a: second, b: first, expected: true},
		{name: "equal work, seen first", a: first, b: second, expected: false},
		{name: "less work", a: first, b: longer, expected: true},
	}
	for _, test := range tests {
		if result := WorkSorterLess(test.a, test.b); result != test.expected {
			t.Fatalf("TestWorkSorterLess: %s: expected %t, got %t", test.name, test.expected, result)
		}
	}
}

func TestPastMedianTime(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 20, 0, StatusHeaderValid)

	// Timestamps grow by 600 seconds per height.
	tests := []struct {
		entry    *Entry
		expected int64
	}{
		{entry: genesis, expected: genesis.TimeInSeconds()},
		{entry: chain[3], expected: chain[1].TimeInSeconds()},
		{entry: chain[19], expected: chain[14].TimeInSeconds()},
	}
	for _, test := range tests {
		if medianTime := bi.PastMedianTime(test.entry); medianTime != test.expected {
			t.Fatalf("TestPastMedianTime: expected %d for %s, got %d", test.expected, test.entry, medianTime)
		}
	}
}

func TestDirtyEntries(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 2, 1, StatusHeaderValid)
	checkEntrySet(t, "TestDirtyEntries: inserted", bi.DirtyEntries(), append([]*Entry{genesis}, chain...))

	bi.ClearDirty(bi.DirtyEntries())
	checkEntrySet(t, "TestDirtyEntries: cleared", bi.DirtyEntries(), nil)

	markStatus(t, bi, chain[1], StatusTreeValid)
	checkEntrySet(t, "TestDirtyEntries: status change", bi.DirtyEntries(), chain[1:])
}

func TestLoadEntry(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 3, 1, StatusTransactionsValid)
	markFailed(t, bi, chain[2])

	loaded := New()
	for _, entry := range append([]*Entry{genesis}, chain...) {
		header, status, sequenceID, err := DeserializeEntry(SerializeEntry(entry))
		if err != nil {
			t.Fatalf("TestLoadEntry: DeserializeEntry: %s", err)
		}
		if !header.Equal(entry.Header()) {
			t.Fatalf("TestLoadEntry: the header of %s changed", entry)
		}
		if status != entry.Status() {
			t.Fatalf("TestLoadEntry: expected status %d for %s, got %d", entry.Status(), entry, status)
		}

		loadedEntry, err := loaded.LoadEntry(header, status, sequenceID)
		if err != nil {
			t.Fatalf("TestLoadEntry: LoadEntry: %s", err)
		}
		if !loadedEntry.Hash().Equal(entry.Hash()) {
			t.Fatalf("TestLoadEntry: expected hash %s, got %s", entry.Hash(), loadedEntry.Hash())
		}
		if entry.Work().Cmp(loadedEntry.Work()) != 0 {
			t.Fatalf("TestLoadEntry: expected work %s, got %s", entry.Work(), loadedEntry.Work())
		}
	}

	if dirty := loaded.DirtyEntries(); len(dirty) != 0 {
		t.Fatalf("TestLoadEntry: loaded entries are dirty: %v", dirty)
	}
	loadedTip, ok := loaded.Lookup(chain[1].Hash())
	if !ok {
		t.Fatalf("TestLoadEntry: %s was not loaded", chain[1])
	}
	if loaded.BestHeader() != loadedTip {
		t.Fatalf("TestLoadEntry: expected best header %s, got %s", loadedTip, loaded.BestHeader())
	}
	if !loaded.HasChainData(loadedTip) {
		t.Fatalf("TestLoadEntry: %s has no chain data after loading", loadedTip)
	}

	next, err := loaded.InsertHeader(makeHeader(chain[1].Hash(), 500))
	if err != nil {
		t.Fatalf("TestLoadEntry: InsertHeader: %s", err)
	}
	if next.SequenceID() <= chain[2].SequenceID() {
		t.Fatalf("TestLoadEntry: sequence ID %d was reused after loading", next.SequenceID())
	}

	_, _, _, err = DeserializeEntry([]byte{1, 2, 3})
	checkError(t, "TestLoadEntry: truncated entry", err, ruleerrors.ErrMalformedInput)
}

func TestActiveChain(t *testing.T) {
	bi, genesis := newTestIndex(t)
	chain := extend(t, bi, genesis, 5, 1, StatusHeaderValid)
	branch := extend(t, bi, chain[1], 5, 2, StatusHeaderValid)

	active := NewActiveChain(bi)
	if active.Tip() != nil {
		t.Fatalf("TestActiveChain: a new active chain has tip %s", active.Tip())
	}

	active.SetTip(chain[4])
	if active.Tip() != chain[4] || active.Height() != 5 {
		t.Fatalf("TestActiveChain: unexpected tip %s at height %d", active.Tip(), active.Height())
	}
	if active.AtHeight(0) != genesis {
		t.Fatalf("TestActiveChain: genesis is not at height 0")
	}
	if active.Next(chain[1]) != chain[2] {
		t.Fatalf("TestActiveChain: unexpected successor of %s", chain[1])
	}
	if !active.Contains(chain[3]) {
		t.Fatalf("TestActiveChain: %s is not contained", chain[3])
	}

	active.SetTip(branch[4])
	if active.Tip() != branch[4] || active.Height() != 7 {
		t.Fatalf("TestActiveChain: unexpected tip %s at height %d after the switch",
			active.Tip(), active.Height())
	}
	if active.Contains(chain[3]) {
		t.Fatalf("TestActiveChain: the abandoned %s is still contained", chain[3])
	}
	if !active.Contains(chain[1]) {
		t.Fatalf("TestActiveChain: the fork point %s is not contained", chain[1])
	}
	if active.AtHeight(3) != branch[0] {
		t.Fatalf("TestActiveChain: expected %s at height 3, got %s", branch[0], active.AtHeight(3))
	}

	active.SetTip(chain[0])
	if active.Height() != 1 {
		t.Fatalf("TestActiveChain: expected height 1, got %d", active.Height())
	}
	if active.AtHeight(2) != nil {
		t.Fatalf("TestActiveChain: a height above the tip has an entry")
	}
	if active.Next(chain[0]) != nil {
		t.Fatalf("TestActiveChain: the tip has a successor")
	}
}
