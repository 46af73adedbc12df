package srp

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cronokirby/saferith"
)

const (
	// MinGroupBits is the smallest modulus accepted for any group.
	MinGroupBits = 1024

	// primalityRounds is the Miller-Rabin round count used on top of the
	// Baillie-PSW test performed by big.Int.ProbablyPrime.
	primalityRounds = 8

	groupNamePrefix = "rfc5054-"
)

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

type catalogEntry struct {
	bits      int
	generator int64
	modulus   string
}

// Group is an immutable SRP group: a safe prime modulus N and a generator g.
// A *Group can only be obtained through NewGroup or the catalog, so every
// Group in use has passed ValidateGroup.
type Group struct {
	name string
	n    *big.Int
	g    *big.Int
	size int

	modulus *saferith.Modulus
	gen     *saferith.Nat
}

// catalogSlot validates its entry on first lookup and caches the outcome.
type catalogSlot struct {
	once  sync.Once
	entry catalogEntry
	group *Group
	err   error
}

var (
	catalogOnce sync.Once
	catalog     map[int]*catalogSlot
)

func loadCatalog() {
	catalogOnce.Do(func() {
		catalog = make(map[int]*catalogSlot, len(catalogEntries))
		for _, e := range catalogEntries {
			catalog[e.bits] = &catalogSlot{entry: e}
		}
	})
}

// LookupGroup returns the standard group with the given name, e.g.
// "rfc5054-2048". The bare bit size ("2048") is accepted as well.
func LookupGroup(name string) (*Group, error) {
	bits, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), groupNamePrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	return GroupByBits(bits)
}

// GroupByBits returns the standard group whose modulus has the given bit length.
func GroupByBits(bits int) (*Group, error) {
	loadCatalog()

	slot, ok := catalog[bits]
	if !ok {
		return nil, fmt.Errorf("%w: no %d-bit group", ErrUnknownGroup, bits)
	}

	slot.once.Do(func() {
		n, ok := new(big.Int).SetString(slot.entry.modulus, 16)
		if !ok {
			slot.err = fmt.Errorf("%w: malformed %d-bit catalog modulus", ErrInvalidGroup, bits)
			return
		}
		slot.group, slot.err = NewGroup(groupName(bits), n, big.NewInt(slot.entry.generator))
	})

	return slot.group, slot.err
}

// GroupNames lists the catalog names in ascending modulus size.
func GroupNames() []string {
	loadCatalog()

	bits := make([]int, 0, len(catalog))
	for b := range catalog {
		bits = append(bits, b)
	}
	sort.Ints(bits)

	names := make([]string, len(bits))
	for i, b := range bits {
		names[i] = groupName(b)
	}
	return names
}

func groupName(bits int) string {
	return groupNamePrefix + strconv.Itoa(bits)
}

// NewGroup validates caller-supplied parameters and returns a Group.
func NewGroup(name string, n, g *big.Int) (*Group, error) {
	if err := ValidateGroup(n, g); err != nil {
		return nil, err
	}

	bits := n.BitLen()
	if name == "" {
		name = fmt.Sprintf("custom-%d", bits)
	}

	return &Group{
		name:    name,
		n:       new(big.Int).Set(n),
		g:       new(big.Int).Set(g),
		size:    (bits + 7) / 8,
		modulus: saferith.ModulusFromNat(new(saferith.Nat).SetBig(n, bits)),
		gen:     new(saferith.Nat).SetBig(g, bits),
	}, nil
}

// ValidateGroup checks that n is a safe prime of at least MinGroupBits bits
// and that g generates a large subgroup modulo n.
//
// For a safe prime N = 2q+1 the only subgroups have order 1, 2, q and 2q, so
// rejecting g in {0, 1, N-1} (and any g with g^2 = 1) leaves an element of
// order q or 2q.
func ValidateGroup(n, g *big.Int) error {
	if n == nil || g == nil {
		return fmt.Errorf("%w: N and g are required", ErrInvalidGroup)
	}
	if n.Sign() <= 0 || n.Bit(0) == 0 {
		return fmt.Errorf("%w: N must be a positive odd integer", ErrInvalidGroup)
	}
	if n.BitLen() < MinGroupBits {
		return fmt.Errorf("%w: N has %d bits, need at least %d", ErrInvalidGroup, n.BitLen(), MinGroupBits)
	}

	nMinusOne := new(big.Int).Sub(n, bigOne)
	if g.Cmp(bigOne) <= 0 || g.Cmp(nMinusOne) >= 0 {
		return fmt.Errorf("%w: g must satisfy 1 < g < N-1", ErrInvalidGroup)
	}
	if new(big.Int).Exp(g, bigTwo, n).Cmp(bigOne) == 0 {
		return fmt.Errorf("%w: g lies in a small subgroup", ErrInvalidGroup)
	}

	if !n.ProbablyPrime(primalityRounds) {
		return fmt.Errorf("%w: N is not prime", ErrInvalidGroup)
	}
	q := new(big.Int).Rsh(n, 1)
	if !q.ProbablyPrime(primalityRounds) {
		return fmt.Errorf("%w: (N-1)/2 is not prime", ErrInvalidGroup)
	}

	return nil
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Bits returns the bit length of N.
func (g *Group) Bits() int { return g.n.BitLen() }

// ByteLen returns the byte length of N, which is the width of every padded value.
func (g *Group) ByteLen() int { return g.size }

// N returns a copy of the modulus.
func (g *Group) N() *big.Int { return new(big.Int).Set(g.n) }

// G returns a copy of the generator.
func (g *Group) G() *big.Int { return new(big.Int).Set(g.g) }

func (g *Group) String() string {
	return fmt.Sprintf("%s (%d-bit, g=%s)", g.name, g.Bits(), g.g.String())
}
