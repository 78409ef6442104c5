// README: Acceptance coordinator. Owns the accept/advance/create-order
// protocols: guard, transaction, post-commit fanout, in that order.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	"flashfood/internal/modules/cart"
	"flashfood/internal/modules/catalog"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/modules/wallet"
	"flashfood/internal/types"
)

type OrderStore interface {
	Create(ctx context.Context, o *order.Order) error
	FindByID(ctx context.Context, id types.ID) (*order.Order, error)
	Update(ctx context.Context, id types.ID, driverID *types.ID) error
	UpdateStatus(ctx context.Context, id types.ID, status order.Status) error
	UpdateTrackingInfo(ctx context.Context, id types.ID, info order.TrackingInfo) error
	VerifyDelivered(ctx context.Context, id types.ID) (bool, error)
}

type ProgressStore interface {
	Create(ctx context.Context, r *progress.Run) error
	Update(ctx context.Context, r *progress.Run) error
	Get(ctx context.Context, id types.ID) (*progress.Run, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*progress.Run, error)
}

type DriverStore interface {
	FindByID(ctx context.Context, id types.ID) (*driver.Driver, error)
	SetOnDelivery(ctx context.Context, id types.ID, onDelivery bool) error
	AddCurrentOrder(ctx context.Context, driverID, orderID types.ID) error
	RemoveCurrentOrders(ctx context.Context, driverID types.ID, orderIDs []types.ID) error
}

type WalletStore interface {
	CreateTransaction(ctx context.Context, dto wallet.CreateTransactionDTO) (*wallet.Transaction, error)
}

type CartStore interface {
	FindByCustomer(ctx context.Context, customerID types.ID) ([]*cart.Item, error)
	Delete(ctx context.Context, id types.ID) error
	Update(ctx context.Context, it *cart.Item) error
}

type CatalogStore interface {
	FindCustomer(ctx context.Context, id types.ID) (*catalog.Customer, error)
	FindRestaurant(ctx context.Context, id types.ID) (*catalog.Restaurant, error)
	FindAddress(ctx context.Context, id types.ID) (*catalog.Address, error)
	FindMenuItem(ctx context.Context, id types.ID) (*catalog.MenuItem, error)
	BumpPurchaseCount(ctx context.Context, id types.ID, by int) error
}

// TxRunner runs fn atomically; stores called with fn's ctx join the same
// database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Fanout delivers notifications after commit; implementations must not block.
type Fanout interface {
	OrderStatusUpdated(o *order.Order)
	ProgressUpdated(driverID types.ID, run *progress.Run)
}

type ETAEstimator interface {
	TravelSeconds(ctx context.Context, origin, dest types.Point) (int64, error)
}

type Config struct {
	// DriverWageCents is the flat wage credited to the driver on acceptance.
	DriverWageCents int64
	// SystemWalletID funds driver wages; empty disables wage payout.
	SystemWalletID types.ID
	Currency       string
}

type Service struct {
	tx       TxRunner
	orders   OrderStore
	runs     ProgressStore
	drivers  DriverStore
	wallets  WalletStore
	carts    CartStore
	catalog  CatalogStore
	fanout   Fanout
	locks    Locker
	eta      ETAEstimator
	validate *validator.Validate
	cfg      Config
	now      func() time.Time
}

func NewService(
	tx TxRunner,
	orders OrderStore,
	runs ProgressStore,
	drivers DriverStore,
	wallets WalletStore,
	carts CartStore,
	cat CatalogStore,
	fanout Fanout,
	locks Locker,
	eta ETAEstimator,
	cfg Config,
) *Service {
	return &Service{
		tx:       tx,
		orders:   orders,
		runs:     runs,
		drivers:  drivers,
		wallets:  wallets,
		carts:    carts,
		catalog:  cat,
		fanout:   fanout,
		locks:    locks,
		eta:      eta,
		validate: validator.New(),
		cfg:      cfg,
		now:      time.Now,
	}
}

// AcceptOrder assigns an order to a driver. The in-flight guard rejects a
// second concurrent attempt by the same driver; inside the transaction the
// active-run check rejects a driver who already carries a delivery. All writes
// commit together and the fanout fires exactly once, after commit.
func (s *Service) AcceptOrder(ctx context.Context, driverID, orderID types.ID) (*progress.Run, error) {
	if driverID == "" || orderID == "" {
		return nil, fmt.Errorf("%w: driver id and order id are required", ErrInvalidInput)
	}

	key := acceptKey(string(driverID))
	ok, err := s.locks.TryAcquire(ctx, key, string(driverID))
	if err != nil {
		acceptsTotal.WithLabelValues("error").Inc()
		return nil, errors.Join(ErrTxFailed, err)
	}
	if !ok {
		acceptsTotal.WithLabelValues("already_processing").Inc()
		return nil, ErrAlreadyProcessing
	}
	defer func() {
		// a cancelled request must still release the lease, or the driver
		// stays blocked until the TTL expires
		if err := s.locks.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Printf("delivery: release accept guard for %s: %v", driverID, err)
		}
	}()

	var (
		run *progress.Run
		o   *order.Order
	)
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.runs.ActiveByDriver(ctx, driverID); err == nil {
			return ErrDriverBusy
		} else if !errors.Is(err, progress.ErrNotFound) {
			return err
		}

		d, err := s.drivers.FindByID(ctx, driverID)
		if err != nil {
			return err
		}
		o, err = s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		if err := s.drivers.AddCurrentOrder(ctx, driverID, orderID); err != nil {
			return err
		}

		run = progress.NewRun(driverID, orderID, s.now())
		s.annotateETA(ctx, run, o)
		if err := s.runs.Create(ctx, run); err != nil {
			return err
		}

		if err := s.orders.Update(ctx, orderID, &driverID); err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(ctx, orderID, order.StatusInProgress); err != nil {
			return err
		}
		if err := s.applyTracking(ctx, orderID, order.StatusInProgress); err != nil {
			return err
		}

		// wage settles through the wallet system, so only FWallet-paid orders
		// carry one
		if o.PaymentMethod == order.PaymentFWallet &&
			s.cfg.SystemWalletID != "" && s.cfg.DriverWageCents > 0 {
			if d.WalletID == nil {
				log.Printf("delivery: driver %s has no wallet, skipping wage for order %s", driverID, orderID)
			} else if _, err := s.wallets.CreateTransaction(ctx, wallet.CreateTransactionDTO{
				FromWalletID: s.cfg.SystemWalletID,
				ToWalletID:   *d.WalletID,
				AmountCents:  s.cfg.DriverWageCents,
				Currency:     s.cfg.Currency,
				Reference:    orderID,
			}); err != nil {
				return fmt.Errorf("driver wage: %w", err)
			}
		}

		return s.drivers.SetOnDelivery(ctx, driverID, true)
	})
	if txErr != nil {
		if errors.Is(txErr, ErrDriverBusy) {
			acceptsTotal.WithLabelValues("driver_busy").Inc()
		} else {
			acceptsTotal.WithLabelValues("error").Inc()
		}
		return nil, coordErr(txErr)
	}
	acceptsTotal.WithLabelValues("ok").Inc()

	o.DriverID = &driverID
	o.Status = order.StatusInProgress
	if ti, ok := order.TrackingFor(order.StatusInProgress); ok {
		o.TrackingInfo = ti
	}
	s.fanout.OrderStatusUpdated(o)
	s.fanout.ProgressUpdated(driverID, run)
	return run, nil
}

// AdvanceProgress moves a run one stage forward. Every order in the run moves
// in lockstep; the terminal stage completes all of them, settles the driver's
// associations and verifies the delivered writes after commit.
func (s *Service) AdvanceProgress(ctx context.Context, runID types.ID) (*progress.Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	var (
		run       *progress.Run
		completed []*order.Order
	)
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		run, err = s.runs.Get(ctx, runID)
		if err != nil {
			return err
		}
		if err := run.Advance(s.now()); err != nil {
			return err
		}

		switch run.CurrentState {
		case progress.StateEnRouteToCustomer:
			for _, id := range run.OrderIDs {
				if err := s.orders.UpdateStatus(ctx, id, order.StatusOutForDelivery); err != nil {
					return err
				}
				if err := s.applyTracking(ctx, id, order.StatusOutForDelivery); err != nil {
					return err
				}
			}
		case progress.StateDeliveryComplete:
			if err := s.drivers.RemoveCurrentOrders(ctx, run.DriverID, run.OrderIDs); err != nil {
				return err
			}
			if err := s.drivers.SetOnDelivery(ctx, run.DriverID, false); err != nil {
				return err
			}
			for _, id := range run.OrderIDs {
				if err := s.orders.UpdateStatus(ctx, id, order.StatusDelivered); err != nil {
					return err
				}
				if err := s.applyTracking(ctx, id, order.StatusDelivered); err != nil {
					return err
				}
				o, err := s.orders.FindByID(ctx, id)
				if err != nil {
					return err
				}
				completed = append(completed, o)
			}
		}

		if !run.IsTerminal() {
			s.annotateETA(ctx, run, nil)
		}
		return s.runs.Update(ctx, run)
	})
	if txErr != nil {
		return nil, coordErr(txErr)
	}
	advancesTotal.WithLabelValues(string(run.CurrentState)).Inc()

	if run.IsTerminal() {
		for _, o := range completed {
			ok, err := s.orders.VerifyDelivered(ctx, o.ID)
			if err != nil {
				log.Printf("CRITICAL delivery: verify order %s after terminal advance: %v", o.ID, err)
			} else if !ok {
				log.Printf("CRITICAL delivery: order %s not in delivered state after terminal advance", o.ID)
			}
		}
	}

	s.fanout.ProgressUpdated(run.DriverID, run)
	for _, o := range completed {
		s.fanout.OrderStatusUpdated(o)
	}
	return run, nil
}

type OrderItemInput struct {
	ItemID    types.ID `json:"item_id" validate:"required"`
	VariantID types.ID `json:"variant_id" validate:"required"`
	Quantity  int      `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderInput struct {
	CustomerID         types.ID            `json:"customer_id" validate:"required"`
	RestaurantID       types.ID            `json:"restaurant_id" validate:"required"`
	CustomerLocation   types.ID            `json:"customer_location" validate:"required"`
	RestaurantLocation types.ID            `json:"restaurant_location" validate:"required"`
	PaymentMethod      order.PaymentMethod `json:"payment_method" validate:"required,oneof=FWallet COD"`
	Items              []OrderItemInput    `json:"items" validate:"required,min=1,dive"`
}

// CreateOrder validates the request, consumes the customer's cart reservation
// and settles an FWallet payment, all in one transaction. An insufficient
// balance aborts everything including the cart consumption.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*order.Order, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	cust, err := s.catalog.FindCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	rest, err := s.catalog.FindRestaurant(ctx, in.RestaurantID)
	if err != nil {
		return nil, err
	}
	if !rest.IsAcceptingOrders {
		return nil, ErrNotAccepting
	}
	if _, err := s.catalog.FindAddress(ctx, in.CustomerLocation); err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindAddress(ctx, in.RestaurantLocation); err != nil {
		return nil, err
	}

	now := s.now()
	o := &order.Order{
		ID:                 types.NewID(types.PrefixOrder),
		CustomerID:         in.CustomerID,
		RestaurantID:       in.RestaurantID,
		Status:             order.StatusPending,
		PaymentMethod:      in.PaymentMethod,
		CustomerLocation:   in.CustomerLocation,
		RestaurantLocation: in.RestaurantLocation,
		TotalAmount:        types.Money{Currency: s.cfg.Currency},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if ti, ok := order.TrackingFor(order.StatusPending); ok {
		o.TrackingInfo = ti
	}
	for _, it := range in.Items {
		mi, err := s.catalog.FindMenuItem(ctx, it.ItemID)
		if err != nil {
			return nil, err
		}
		if mi.RestaurantID != in.RestaurantID {
			return nil, fmt.Errorf("%w: item %s does not belong to restaurant %s", ErrInvalidInput, it.ItemID, in.RestaurantID)
		}
		o.Items = append(o.Items, order.Item{
			ItemID:     it.ItemID,
			VariantID:  it.VariantID,
			Name:       mi.Name,
			Quantity:   it.Quantity,
			PriceCents: mi.PriceCents,
		})
		o.TotalAmount.Amount += mi.PriceCents * int64(it.Quantity)
	}

	txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.consumeCart(ctx, in.CustomerID, o.Items); err != nil {
			return err
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		if in.PaymentMethod == order.PaymentFWallet {
			if cust.WalletID == nil || rest.WalletID == nil {
				return fmt.Errorf("%w: FWallet payment requires customer and restaurant wallets", ErrInvalidInput)
			}
			if _, err := s.wallets.CreateTransaction(ctx, wallet.CreateTransactionDTO{
				FromWalletID: *cust.WalletID,
				ToWalletID:   *rest.WalletID,
				AmountCents:  o.TotalAmount.Amount,
				Currency:     o.TotalAmount.Currency,
				Reference:    o.ID,
			}); err != nil {
				return err
			}
		}
		for _, it := range o.Items {
			if err := s.catalog.BumpPurchaseCount(ctx, it.ItemID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, coordErr(txErr)
	}
	ordersCreatedTotal.Inc()

	s.fanout.OrderStatusUpdated(o)
	return o, nil
}

// consumeCart decrements the cart reservation behind the order. A cart line
// covering less than the ordered quantity fails the whole transaction; an
// order line with no cart reservation passes through untouched.
func (s *Service) consumeCart(ctx context.Context, customerID types.ID, items []order.Item) error {
	lines, err := s.carts.FindByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	byItem := make(map[types.ID]*cart.Item, len(lines))
	for _, l := range lines {
		byItem[l.ItemID] = l
	}

	for _, it := range items {
		line, ok := byItem[it.ItemID]
		if !ok {
			continue
		}
		reserved := line.VariantQuantity(it.VariantID)
		if reserved == 0 {
			continue
		}
		if it.Quantity > reserved {
			return fmt.Errorf("%w: item %s variant %s", ErrCartExceeded, it.ItemID, it.VariantID)
		}
		if empty := line.Decrement(it.VariantID, it.Quantity); empty {
			if err := s.carts.Delete(ctx, line.ID); err != nil {
				return err
			}
			delete(byItem, it.ItemID)
			continue
		}
		if err := s.carts.Update(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// applyTracking projects a status onto tracking_info. An unmapped status is
// logged and leaves the stored value untouched.
func (s *Service) applyTracking(ctx context.Context, orderID types.ID, status order.Status) error {
	ti, ok := order.TrackingFor(status)
	if !ok {
		log.Printf("delivery: no tracking mapping for status %s, order %s keeps previous value", status, orderID)
		return nil
	}
	return s.orders.UpdateTrackingInfo(ctx, orderID, ti)
}

// annotateETA fills estimated_time on the active stage. Best effort: any
// lookup or estimator failure is logged and the advance proceeds without it.
func (s *Service) annotateETA(ctx context.Context, run *progress.Run, o *order.Order) {
	if s.eta == nil || len(run.OrderIDs) == 0 {
		return
	}
	idx, ok := run.ActiveStageIndex()
	if !ok {
		return
	}

	var err error
	if o == nil {
		if o, err = s.orders.FindByID(ctx, run.OrderIDs[0]); err != nil {
			log.Printf("delivery: eta lookup order %s: %v", run.OrderIDs[0], err)
			return
		}
	}
	d, err := s.drivers.FindByID(ctx, run.DriverID)
	if err != nil || d.CurrentLocation == nil {
		return
	}

	destID := o.RestaurantLocation
	if run.CurrentState == progress.StateEnRouteToCustomer {
		destID = o.CustomerLocation
	}
	dest, err := s.catalog.FindAddress(ctx, destID)
	if err != nil {
		log.Printf("delivery: eta address %s: %v", destID, err)
		return
	}

	secs, err := s.eta.TravelSeconds(ctx, *d.CurrentLocation, dest.Location)
	if err != nil {
		log.Printf("delivery: eta estimate for run %s: %v", run.ID, err)
		return
	}
	run.Stages[idx].Details.EstimatedTime = &secs
}

// coordErr passes domain sentinels through and wraps anything else as a
// transaction failure.
func coordErr(err error) error {
	for _, d := range []error{
		ErrDriverBusy, ErrAlreadyProcessing, ErrInvalidInput, ErrNotAccepting, ErrCartExceeded,
		order.ErrNotFound, driver.ErrNotFound, cart.ErrNotFound,
		progress.ErrNotFound, progress.ErrNoActiveStage, progress.ErrAlreadyFinal,
		progress.ErrTooManyOrders, progress.ErrRunComplete,
		wallet.ErrNotFound, wallet.ErrInsufficientBalance,
		catalog.ErrCustomerNotFound, catalog.ErrRestaurantNotFound,
		catalog.ErrAddressNotFound, catalog.ErrMenuItemNotFound,
	} {
		if errors.Is(err, d) {
			return err
		}
	}
	return errors.Join(ErrTxFailed, err)
}
