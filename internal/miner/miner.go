// Package miner implements the West World gold miner from Buckland's
// "Programming Game AI by Example" as a behavior tree.
package miner

import (
	"errors"
	"io"
	"log"

	"example.com/bt-fleet/internal/agent/behavior"
)

type Location int

const (
	Nowhere Location = iota
	Mine
	Bank
	Saloon
	Home
)

func (l Location) String() string {
	switch l {
	case Mine:
		return "mine"
	case Bank:
		return "bank"
	case Saloon:
		return "saloon"
	case Home:
		return "home"
	default:
		return "nowhere"
	}
}

// Params tune the miner's priorities.
type Params struct {
	PocketSize      int `yaml:"pocket_size" json:"pocket_size"`
	MinimumBalance  int `yaml:"minimum_balance" json:"minimum_balance"`
	ThirstThreshold int `yaml:"thirst_threshold" json:"thirst_threshold"`
}

func DefaultParams() Params {
	return Params{PocketSize: 3, MinimumBalance: 9, ThirstThreshold: 5}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.PocketSize == 0 {
		p.PocketSize = d.PocketSize
	}
	if p.MinimumBalance == 0 {
		p.MinimumBalance = d.MinimumBalance
	}
	if p.ThirstThreshold == 0 {
		p.ThirstThreshold = d.ThirstThreshold
	}
	return p
}

func (p Params) Validate() error {
	var errs []error
	if p.PocketSize < 1 {
		errs = append(errs, errors.New("pocket_size must be at least 1"))
	}
	if p.MinimumBalance < 1 {
		errs = append(errs, errors.New("minimum_balance must be at least 1"))
	}
	if p.ThirstThreshold < 1 {
		errs = append(errs, errors.New("thirst_threshold must be at least 1"))
	}
	return errors.Join(errs...)
}

// Miner holds the state the tree's leaves read and change. It is not safe
// for concurrent use; read it through Stats from the goroutine that ticks
// the tree.
type Miner struct {
	params Params
	logger *log.Logger

	location Location
	bank     int
	pockets  int
	thirst   int

	nuggets  int
	deposits int
	drinks   int
	naps     int
}

// New returns a miner that is nowhere with empty pockets. A nil logger
// discards the miner's chatter.
func New(params Params, logger *log.Logger) *Miner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Miner{params: params.WithDefaults(), logger: logger}
}

func (m *Miner) Params() Params {
	return m.params
}

func (m *Miner) Location() Location {
	return m.location
}

func (m *Miner) Bank() int    { return m.bank }
func (m *Miner) Pockets() int { return m.pockets }
func (m *Miner) Thirst() int  { return m.thirst }

// Stats returns a copy of the miner's state for telemetry.
func (m *Miner) Stats() map[string]any {
	return map[string]any{
		"location": m.location.String(),
		"bank":     m.bank,
		"pockets":  m.pockets,
		"thirst":   m.thirst,
		"nuggets":  m.nuggets,
		"deposits": m.deposits,
		"drinks":   m.drinks,
		"naps":     m.naps,
	}
}

func (m *Miner) enoughMoney() bool {
	return m.bank >= m.params.MinimumBalance
}

func (m *Miner) thirsty() bool {
	return m.thirst >= m.params.ThirstThreshold
}

func (m *Miner) pocketsFull() bool {
	return m.pockets >= m.params.PocketSize
}

func (m *Miner) goTo(to Location) behavior.Status {
	if m.location == to {
		return behavior.Success
	}

	switch m.location {
	case Mine:
		m.logger.Println("Ah'm leavin' the gold mine with mah pockets full o' sweet gold.")
	case Bank:
		m.logger.Println("Leavin' the bank.")
	case Saloon:
		m.logger.Println("Leavin' the saloon, feelin' good.")
	case Home:
		m.logger.Println("What a gosh-darn fantastic nap! Time to find more gold.")
	}

	switch to {
	case Mine:
		m.logger.Println("Walkin' to the gold mine.")
	case Bank:
		m.logger.Println("Goin' to the bank. Yes siree.")
	case Saloon:
		m.logger.Println("Boy, ah sure is thusty! Walkin' to the saloon.")
	case Home:
		m.logger.Println("Woohoo! Rich enough for now. Back home to mah li'l lady.")
		m.logger.Println("Walkin' home.")
	}

	m.location = to
	return behavior.Success
}

// sleep spends a coin per tick and keeps running until the miner is broke.
func (m *Miner) sleep() behavior.Status {
	if m.location != Home {
		return behavior.Failure
	}
	m.logger.Println("zzzzZZZZzzz...")
	m.bank--
	if m.bank <= 0 {
		m.naps++
		return behavior.Success
	}
	return behavior.Running
}

func (m *Miner) drink() behavior.Status {
	if m.location != Saloon {
		return behavior.Failure
	}
	m.thirst = 0
	m.drinks++
	m.logger.Println("That's mighty fine sippin liquor.")
	return behavior.Success
}

func (m *Miner) deposit() behavior.Status {
	if m.location != Bank {
		return behavior.Failure
	}
	m.bank += m.pockets
	m.pockets = 0
	m.deposits++
	m.logger.Printf("Depositin' gold. Total savings now: %d", m.bank)
	return behavior.Success
}

func (m *Miner) dig() behavior.Status {
	if m.location != Mine {
		return behavior.Failure
	}
	m.pockets++
	m.thirst++
	m.nuggets++
	m.logger.Println("Pickin' up a nugget.")
	return behavior.Success
}

// Tree builds the miner's behavior: go home and sleep when rich enough,
// drink when thirsty, bank a full pocket, and otherwise mine.
func (m *Miner) Tree() *behavior.PrioritySelector {
	return behavior.NewPrioritySelector(behavior.WithName("miner")).
		AddChild(m.errand(Home, "sleep", m.sleep), m.enoughMoney).
		AddChild(m.errand(Saloon, "drink", m.drink), m.thirsty).
		AddChild(m.errand(Bank, "deposit", m.deposit), m.pocketsFull).
		AddChild(m.errand(Mine, "dig", m.dig), nil)
}

func (m *Miner) errand(to Location, activity string, fn func() behavior.Status) *behavior.Sequence {
	return behavior.NewSequence(behavior.WithName(to.String())).
		AddChild(behavior.NewAction(func() behavior.Status { return m.goTo(to) }, behavior.WithName("go to "+to.String()))).
		AddChild(behavior.NewAction(fn, behavior.WithName(activity)))
}
