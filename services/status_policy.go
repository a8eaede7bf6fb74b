package services

import (
	"fmt"

	"github.com/valtrilabs/cafe-backend/models"
)

// statusRank orders the lifecycle; transitions may only move to a higher rank.
var statusRank = map[models.OrderStatus]int{
	models.OrderStatusPending:   0,
	models.OrderStatusPrepared:  1,
	models.OrderStatusCompleted: 2,
	models.OrderStatusPaid:      3,
}

// StatusPolicy decides which order status transitions a deployment allows,
// which statuses end the originating session, and which need a payment method.
type StatusPolicy struct {
	transitions     map[models.OrderStatus]map[models.OrderStatus]bool
	terminal        map[models.OrderStatus]bool
	paymentRequired map[models.OrderStatus]bool
}

// NewStatusPolicy builds a policy from status names. Backward edges are
// rejected so the lifecycle stays forward-only whatever the configuration.
func NewStatusPolicy(transitions map[string][]string, terminal, paymentRequired []string) (*StatusPolicy, error) {
	p := &StatusPolicy{
		transitions:     make(map[models.OrderStatus]map[models.OrderStatus]bool),
		terminal:        make(map[models.OrderStatus]bool),
		paymentRequired: make(map[models.OrderStatus]bool),
	}

	for fromName, targets := range transitions {
		from, err := models.ParseOrderStatus(fromName)
		if err != nil {
			return nil, err
		}
		for _, toName := range targets {
			to, err := models.ParseOrderStatus(toName)
			if err != nil {
				return nil, err
			}
			if statusRank[to] <= statusRank[from] {
				return nil, fmt.Errorf("transition %s -> %s is not forward", from, to)
			}
			if p.transitions[from] == nil {
				p.transitions[from] = make(map[models.OrderStatus]bool)
			}
			p.transitions[from][to] = true
		}
	}

	if err := fillStatusSet(p.terminal, terminal); err != nil {
		return nil, err
	}
	if err := fillStatusSet(p.paymentRequired, paymentRequired); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultStatusPolicy allows Pending->Prepared->Completed->Paid plus the direct
// Pending->Completed shortcut, and only requires payment for Paid.
func DefaultStatusPolicy() *StatusPolicy {
	p, err := NewStatusPolicy(map[string][]string{
		"Pending":   {"Prepared", "Completed"},
		"Prepared":  {"Completed"},
		"Completed": {"Paid"},
	}, []string{"Prepared", "Completed", "Paid"}, []string{"Paid"})
	if err != nil {
		panic(err)
	}
	return p
}

func fillStatusSet(set map[models.OrderStatus]bool, names []string) error {
	for _, name := range names {
		st, err := models.ParseOrderStatus(name)
		if err != nil {
			return err
		}
		set[st] = true
	}
	return nil
}

func (p *StatusPolicy) CanTransition(from, to models.OrderStatus) bool {
	return p.transitions[from][to]
}

func (p *StatusPolicy) IsTerminal(status models.OrderStatus) bool {
	return p.terminal[status]
}

func (p *StatusPolicy) RequiresPayment(status models.OrderStatus) bool {
	return p.paymentRequired[status]
}
