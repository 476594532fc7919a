package services

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/codec"
	"github.com/speedrun-hq/solver/db"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/models"
	"github.com/speedrun-hq/solver/solver"
)

// Constants for order event processing
const (
	// OrderCreatedEventName is the name of the order creation event
	OrderCreatedEventName = "OrderCreated"

	// OrderCreatedRequiredTopics is the minimum number of topics required in a log
	OrderCreatedRequiredTopics = 3

	// orderRegistryABI describes the registry events this service consumes.
	orderRegistryABI = `[
		{"anonymous":false,"type":"event","name":"OrderCreated","inputs":[
			{"indexed":true,"internalType":"bytes32","name":"orderId","type":"bytes32"},
			{"indexed":true,"internalType":"address","name":"resolver","type":"address"},
			{"indexed":false,"internalType":"bytes","name":"payload","type":"bytes"}]}
	]`
)

// OrderCreatedEvent is a decoded order-creation log.
type OrderCreatedEvent struct {
	OrderID     string
	Resolver    common.Address
	Payload     []byte
	BlockNumber uint64
	TxHash      string
}

// OrderService ingests orders from one chain's registry contract and
// drives them through the solver pipeline.
type OrderService struct {
	client   *ethclient.Client
	sctx     *SolverContext
	database db.Database
	metrics  *MetricsService
	abi      abi.ABI
	chainID  uint64
	registry common.Address
	subs     map[string]ethereum.Subscription
	mu       sync.Mutex
	logger   zerolog.Logger

	// Goroutine cleanup management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	goroutineWg   sync.WaitGroup
	isShutdown    bool
	shutdownMu    sync.RWMutex
}

// NewOrderService creates an order ingestion service for one chain.
func NewOrderService(
	client *ethclient.Client,
	sctx *SolverContext,
	database db.Database,
	metrics *MetricsService,
	chainID uint64,
	registry common.Address,
	logger zerolog.Logger,
) (*OrderService, error) {
	parsedABI, err := abi.JSON(strings.NewReader(orderRegistryABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse registry ABI")
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	return &OrderService{
		client:   client,
		sctx:     sctx,
		database: database,
		metrics:  metrics,
		abi:      parsedABI,
		chainID:  chainID,
		registry: registry,
		subs:     make(map[string]ethereum.Subscription),
		logger: logger.With().
			Uint64(logging.FieldChain, chainID).
			Str(logging.FieldModule, "order_service").
			Logger(),
		cleanupCtx:    cleanupCtx,
		cleanupCancel: cleanupCancel,
	}, nil
}

// StartListening subscribes to order events on the registry contract.
func (s *OrderService) StartListening(ctx context.Context) error {
	if s.IsShutdown() {
		return errors.New("cannot start listening: service is shutdown")
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.registry},
		Topics: [][]common.Hash{
			{s.abi.Events[OrderCreatedEventName].ID},
		},
	}

	logs := make(chan types.Log)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to logs")
	}

	subID := s.registry.Hex()
	s.mu.Lock()
	s.subs[subID] = sub
	s.mu.Unlock()
	s.metrics.SetSubscriptions(s.chainID, s.SubscriptionCount())

	s.logger.Info().Str("registry", s.registry.Hex()).Msg("Subscribed to order events")

	s.startGoroutine("order-processor", func() {
		s.processEventLogs(s.cleanupCtx, sub, logs, subID)
	})
	return nil
}

// processEventLogs handles the event processing loop for the subscription.
// It manages subscription errors, log processing, and context cancellation.
func (s *OrderService) processEventLogs(ctx context.Context, sub ethereum.Subscription, logs chan types.Log, subID string) {
	defer func() {
		sub.Unsubscribe()
		s.mu.Lock()
		delete(s.subs, subID)
		s.mu.Unlock()
		s.metrics.SetSubscriptions(s.chainID, s.SubscriptionCount())
		s.logger.Debug().Msgf("Ended order event log processing, subscription %s", subID)
	}()

	s.logger.Info().Msgf("Starting order event log processing, subscription %s", subID)

	for {
		select {
		case err := <-sub.Err():
			if err != nil {
				s.logger.Error().Err(err).Msgf("Order subscription %s error", subID)
				if err := s.handleSubscriptionError(ctx, sub, logs, subID); err != nil {
					s.logger.Error().Err(err).Msg("CRITICAL: Failed to resubscribe order service")
					return
				}
			}
		case vLog, ok := <-logs:
			if !ok {
				s.logger.Error().Msgf("Order log channel closed unexpectedly for %s", subID)
				return
			}

			event, err := s.extractEventData(vLog)
			if err != nil {
				s.logger.Error().Err(err).Msg("Error decoding order log")
				continue
			}

			// Each order runs its own plan driver; plans never share state.
			s.startGoroutine("order-"+event.OrderID, func() {
				s.processOrder(ctx, event)
			})
		case <-ctx.Done():
			s.logger.Debug().Msg("Context cancelled, stopping order event processing")
			return
		}
	}
}

// handleSubscriptionError attempts to recover from a subscription error by resubscribing.
func (s *OrderService) handleSubscriptionError(
	ctx context.Context,
	oldSub ethereum.Subscription,
	logs chan types.Log,
	subID string,
) error {
	oldSub.Unsubscribe()
	s.mu.Lock()
	delete(s.subs, subID)
	s.mu.Unlock()

	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.registry},
		Topics: [][]common.Hash{
			{s.abi.Events[OrderCreatedEventName].ID},
		},
	}

	maxRetries := 5
	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		newSub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
		if err == nil {
			s.mu.Lock()
			s.subs[subID] = newSub
			s.mu.Unlock()
			s.metrics.SetSubscriptions(s.chainID, s.SubscriptionCount())
			s.logger.Debug().Msg("Successfully resubscribed to order events")
			return nil
		}

		backoffTime := time.Duration(1<<attempt) * time.Second
		if backoffTime > 30*time.Second {
			backoffTime = 30 * time.Second
		}
		s.logger.Debug().Err(err).Msgf("Resubscription attempt %d/%d failed. Retrying in %v",
			attempt+1, maxRetries, backoffTime)

		select {
		case <-time.After(backoffTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return errors.Errorf("failed to resubscribe after %d attempts", maxRetries)
}

func (s *OrderService) extractEventData(vLog types.Log) (*OrderCreatedEvent, error) {
	if len(vLog.Topics) < OrderCreatedRequiredTopics {
		return nil, errors.Errorf("invalid log: expected at least %d topics, got %d",
			OrderCreatedRequiredTopics, len(vLog.Topics))
	}
	if vLog.Topics[0] != s.abi.Events[OrderCreatedEventName].ID {
		return nil, errors.Errorf("invalid event signature: %s", vLog.Topics[0].Hex())
	}

	unpacked, err := s.abi.Unpack(OrderCreatedEventName, vLog.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack order event")
	}
	payload, ok := unpacked[0].([]byte)
	if !ok {
		return nil, errors.New("invalid payload in order event")
	}

	return &OrderCreatedEvent{
		OrderID:     vLog.Topics[1].Hex(),
		Resolver:    common.BytesToAddress(vLog.Topics[2].Bytes()),
		Payload:     payload,
		BlockNumber: vLog.BlockNumber,
		TxHash:      vLog.TxHash.Hex(),
	}, nil
}

// processOrder drives one order end to end: persist, resolve, process.
func (s *OrderService) processOrder(ctx context.Context, event *OrderCreatedEvent) {
	logger := s.logger.With().Str(logging.FieldOrder, event.OrderID).Logger()

	s.metrics.OrderProcessed(s.chainID, float64(time.Now().Unix()))

	order := &models.Order{
		ID:          event.OrderID,
		SourceChain: s.chainID,
		Resolver:    event.Resolver.Hex(),
		Status:      models.OrderStatusReceived,
	}
	if err := s.database.CreateOrder(ctx, order); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			logger.Debug().Msg("Skipping duplicate order")
			return
		}
		logger.Error().Err(err).Msg("Failed to persist order")
		return
	}

	public, err := s.sctx.PublicClient(s.chainID)
	if err != nil {
		s.finishOrder(ctx, logger, event, models.OrderStatusFailed, err.Error())
		return
	}

	plan, err := codec.Resolve(ctx, public, event.Resolver, event.Payload)
	if err != nil {
		s.metrics.OrderRejected(s.chainID)
		s.finishOrder(ctx, logger, event, models.OrderStatusRejected, err.Error())
		return
	}

	if err := s.database.UpdateOrderStatus(ctx, event.OrderID, models.OrderStatusFilling, ""); err != nil {
		logger.Error().Err(err).Msg("Failed to update order status")
	}

	outcome, err := solver.Process(ctx, s.sctx, plan, logger)
	switch {
	case err != nil:
		if errors.Is(err, solver.ErrNegativePnl) ||
			errors.Is(err, solver.ErrPricingUnsupported) ||
			errors.Is(err, solver.ErrDelayedPayment) ||
			errors.Is(err, solver.ErrDeadlineTooClose) ||
			errors.Is(err, solver.ErrUntrustedAssumption) ||
			errors.Is(err, solver.ErrUnsupportedWitness) ||
			errors.Is(err, solver.ErrRevertPolicyOrder) {
			s.metrics.OrderRejected(s.chainID)
			s.finishOrder(ctx, logger, event, models.OrderStatusRejected, err.Error())
			return
		}
		s.metrics.OrderFailed(s.chainID)
		s.finishOrder(ctx, logger, event, models.OrderStatusFailed, err.Error())
	case outcome.Filled:
		s.recordPnl(ctx, logger, event, outcome.PnlUsd)
		s.metrics.OrderFilled(s.chainID)
		s.finishOrder(ctx, logger, event, models.OrderStatusFilled, "")
	default:
		s.recordPnl(ctx, logger, event, outcome.PnlUsd)
		s.metrics.OrderDropped(s.chainID)
		s.finishOrder(ctx, logger, event, models.OrderStatusDropped, "")
	}
}

// recordPnl persists the quoted PnL the plan was accepted at.
func (s *OrderService) recordPnl(ctx context.Context, logger zerolog.Logger, event *OrderCreatedEvent, pnlUsd *big.Int) {
	if pnlUsd == nil {
		return
	}

	approx, _ := new(big.Float).SetInt(pnlUsd).Float64()
	s.metrics.OrderPnl(s.chainID, approx)

	if err := s.database.SetOrderPnl(ctx, event.OrderID, pnlUsd.String()); err != nil {
		logger.Error().Err(err).Msg("Failed to record order PnL")
	}
}

func (s *OrderService) finishOrder(ctx context.Context, logger zerolog.Logger, event *OrderCreatedEvent, status models.OrderStatus, detail string) {
	logger.Info().Str("status", string(status)).Str("detail", detail).Msg("Order finished")

	if err := s.database.UpdateOrderStatus(ctx, event.OrderID, status, detail); err != nil {
		logger.Error().Err(err).Msg("Failed to update order status")
	}
}

// SubscriptionCount returns the number of active subscriptions
func (s *OrderService) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// UnsubscribeAll unsubscribes from all active subscriptions
func (s *OrderService) UnsubscribeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subs {
		sub.Unsubscribe()
		s.logger.Debug().Msgf("Unsubscribed from order subscription %s", id)
		delete(s.subs, id)
	}
}

// Shutdown gracefully shuts down the service and waits for all goroutines to complete
func (s *OrderService) Shutdown(timeout time.Duration) error {
	s.shutdownMu.Lock()
	if s.isShutdown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down OrderService...")

	s.cleanupCancel()
	s.UnsubscribeAll()

	done := make(chan struct{})
	go func() {
		s.goroutineWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("OrderService shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.logger.Error().Msgf("OrderService shutdown timed out after %v", timeout)
		return errors.Errorf("shutdown timed out after %v", timeout)
	}
}

// IsShutdown returns whether the service is in shutdown state
func (s *OrderService) IsShutdown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}

// startGoroutine safely starts a goroutine with proper cleanup tracking
func (s *OrderService) startGoroutine(name string, fn func()) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.logger.Debug().Msgf("Cannot start goroutine %s: service is shutdown", name)
		return
	}
	s.shutdownMu.RUnlock()

	s.goroutineWg.Add(1)

	go func() {
		defer func() {
			s.goroutineWg.Done()

			if r := recover(); r != nil {
				s.logger.Error().Msgf("CRITICAL: Panic in goroutine %s: %v", name, r)
			}
		}()

		fn()
	}()
}
