package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"example.com/procurement/services/match/internal/models"
	"example.com/procurement/services/match/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeedOptions controls the size and shape of a generated document set
type SeedOptions struct {
	// PurchaseOrders is the number of transaction sets to generate
	PurchaseOrders int
	// ChaosRate is the fraction of transactions that get a deliberate defect
	ChaosRate float64
	// Seed makes the generated set reproducible
	Seed int64
}

// Chaos modes injected into generated transactions
const (
	chaosNone           = "none"
	chaosPriceHike      = "price_hike"
	chaosGhostPO        = "ghost_po"
	chaosMissingInvoice = "missing_invoice"
	chaosMissingGRN     = "missing_grn"
	chaosCurrencyError  = "currency_error"
)

var chaosModes = []string{
	chaosPriceHike,
	chaosGhostPO,
	chaosMissingInvoice,
	chaosMissingGRN,
	chaosCurrencyError,
}

type seedItem struct {
	sku      string
	desc     string
	priceMin int
	priceMax int
}

type seedVendor struct {
	party    models.Party
	currency string
	taxRate  float64
	items    []seedItem
}

type seedBuyer struct {
	party    models.Party
	currency string
}

// Vendor catalog for the generator. Each vendor bills in its home currency
// and carries its own country tax rate.
var seedVendors = []seedVendor{
	{
		party:    models.Party{Name: "TechFlow Systems", Country: "USA", Address: "123 Silicon Blvd, San Jose, CA 95134"},
		currency: "USD",
		taxRate:  0.08,
		items: []seedItem{
			{sku: "TF-SRV-4U", desc: "Server Rack Mount 4U", priceMin: 250, priceMax: 550},
			{sku: "TF-SSD-100TB", desc: "100TB SSD Storage Unit", priceMin: 900, priceMax: 1300},
			{sku: "TF-FOC-100M", desc: "Fiber Optic Cable (100m)", priceMin: 60, priceMax: 160},
		},
	},
	{
		party:    models.Party{Name: "Nordic Chipsets AB", Country: "Sweden", Address: "Fjordgatan 99, 116 45 Stockholm"},
		currency: "SEK",
		taxRate:  0.25,
		items: []seedItem{
			{sku: "NC-SSD-100TB", desc: "100TB SSD Storage Unit", priceMin: 9500, priceMax: 12500},
			{sku: "NC-FOC-100M", desc: "Fiber Optic Cable (100m)", priceMin: 600, priceMax: 1400},
			{sku: "NC-SW-48P", desc: "Enterprise Switch 48-Port", priceMin: 17000, priceMax: 26000},
		},
	},
	{
		party:    models.Party{Name: "Nippon Logic Ltd - 日本", Country: "Japan", Address: "4-2-8 Shibakoen, Minato City, Tokyo"},
		currency: "JPY",
		taxRate:  0.10,
		items: []seedItem{
			{sku: "NL-SRV-4U", desc: "Server Rack Mount 4U", priceMin: 28000, priceMax: 52000},
			{sku: "NL-FOC-100M", desc: "Fiber Optic Cable (100m)", priceMin: 5500, priceMax: 14500},
			{sku: "NL-FAN-MOD", desc: "Cooling Fan Module", priceMin: 9000, priceMax: 19000},
		},
	},
	{
		party:    models.Party{Name: "Berlin Hardware GmbH", Country: "Germany", Address: "Alexanderplatz 1, 10178 Berlin"},
		currency: "EUR",
		taxRate:  0.19,
		items: []seedItem{
			{sku: "BH-SRV-4U", desc: "Server Rack Mount 4U", priceMin: 230, priceMax: 520},
			{sku: "BH-SSD-100TB", desc: "100TB SSD Storage Unit", priceMin: 850, priceMax: 1250},
			{sku: "BH-SW-48P", desc: "Enterprise Switch 48-Port", priceMin: 1600, priceMax: 2600},
		},
	},
	{
		party:    models.Party{Name: "Mumbai Micro Devices", Country: "India", Address: "Unit 402, Andheri East, Mumbai 400069"},
		currency: "INR",
		taxRate:  0.18,
		items: []seedItem{
			{sku: "MM-FOC-100M", desc: "Fiber Optic Cable (100m)", priceMin: 4200, priceMax: 9800},
			{sku: "MM-FAN-MOD", desc: "Cooling Fan Module", priceMin: 8200, priceMax: 16500},
			{sku: "MM-SW-48P", desc: "Enterprise Switch 48-Port", priceMin: 120000, priceMax: 210000},
		},
	},
}

var seedBuyers = []seedBuyer{
	{party: models.Party{Name: "Global Tech Corp", Country: "USA"}, currency: "USD"},
	{party: models.Party{Name: "Global Tech Europe GmbH", Country: "Germany"}, currency: "EUR"},
	{party: models.Party{Name: "Global Tech India Pvt Ltd", Country: "India"}, currency: "INR"},
	{party: models.Party{Name: "Global Tech Nordics AB", Country: "Sweden"}, currency: "SEK"},
	{party: models.Party{Name: "Global Tech Japan KK", Country: "Japan"}, currency: "JPY"},
}

// Static FX rates to USD, only for generating plausible converted totals
var fxRatesToUSD = map[string]float64{
	"USD": 1.0,
	"SEK": 0.095,
	"JPY": 0.009,
	"EUR": 1.10,
	"INR": 0.012,
}

// SeedService writes a generated procurement world into the store for demos
// and local development
type SeedService struct {
	poRepo      repositories.PurchaseOrderRepository
	invoiceRepo repositories.InvoiceRepository
	receiptRepo repositories.GoodsReceiptRepository
}

// NewSeedService creates a new seed service
func NewSeedService(db *gorm.DB, readOnlyDB *gorm.DB) *SeedService {
	return &SeedService{
		poRepo:      repositories.NewPurchaseOrderRepository(db, readOnlyDB),
		invoiceRepo: repositories.NewInvoiceRepository(db, readOnlyDB),
		receiptRepo: repositories.NewGoodsReceiptRepository(db, readOnlyDB),
	}
}

// Run generates the document set and upserts every record
func (s *SeedService) Run(ctx context.Context, opts SeedOptions) error {
	rng := rand.New(rand.NewSource(opts.Seed))
	pos, invoices, receipts := generateWorld(rng, opts.PurchaseOrders, opts.ChaosRate)

	for i := range pos {
		if err := s.poRepo.Upsert(ctx, &pos[i]); err != nil {
			return errors.Wrapf(err, "failed to seed purchase order %s", pos[i].PONumber)
		}
	}
	for i := range invoices {
		if err := s.invoiceRepo.Upsert(ctx, &invoices[i]); err != nil {
			return errors.Wrapf(err, "failed to seed invoice %s", invoices[i].InvoiceNumber)
		}
	}
	for i := range receipts {
		if err := s.receiptRepo.Upsert(ctx, &receipts[i]); err != nil {
			return errors.Wrapf(err, "failed to seed goods receipt %s", receipts[i].GRNNumber)
		}
	}

	log.Info().
		Int("purchase_orders", len(pos)).
		Int("invoices", len(invoices)).
		Int("goods_receipts", len(receipts)).
		Msg("Seeded document store")

	return nil
}

// generateWorld builds n transaction sets. A chaos transaction gets exactly
// one defect, so reconciliation over the output exercises every status.
func generateWorld(rng *rand.Rand, n int, chaosRate float64) ([]models.PurchaseOrder, []models.Invoice, []models.GoodsReceipt) {
	var pos []models.PurchaseOrder
	var invoices []models.Invoice
	var receipts []models.GoodsReceipt

	for i := 0; i < n; i++ {
		vendor := seedVendors[rng.Intn(len(seedVendors))]
		buyer := seedBuyers[rng.Intn(len(seedBuyers))]

		chaos := chaosNone
		if rng.Float64() < chaosRate {
			chaos = chaosModes[rng.Intn(len(chaosModes))]
		}

		poNumber := fmt.Sprintf("PO-%05d", 10000+rng.Intn(90000))
		poDate := time.Now().AddDate(0, 0, -(10 + rng.Intn(50)))

		po := generatePurchaseOrder(rng, vendor, buyer, poNumber, poDate)
		pos = append(pos, po)

		// A ghost transaction points both downstream documents at the same
		// identifier no PO record carries
		referencePO := po.PONumber
		if chaos == chaosGhostPO {
			referencePO = fmt.Sprintf("PO-%05d", 10000+rng.Intn(90000))
		}

		if chaos != chaosMissingGRN {
			receipts = append(receipts, generateGoodsReceipt(rng, vendor, buyer, po, referencePO, poDate))
		}
		if chaos != chaosMissingInvoice {
			invoices = append(invoices, generateInvoice(rng, vendor, buyer, po, referencePO, poDate, chaos))
		}
	}

	return pos, invoices, receipts
}

func generatePurchaseOrder(rng *rand.Rand, vendor seedVendor, buyer seedBuyer, poNumber string, poDate time.Time) models.PurchaseOrder {
	numItems := 1 + rng.Intn(len(vendor.items))
	perm := rng.Perm(len(vendor.items))

	po := models.PurchaseOrder{
		ID:        uuid.New(),
		PONumber:  poNumber,
		IssueDate: poDate.Format("2006-01-02"),
		Currency:  vendor.currency,
		Vendor:    vendor.party,
		Buyer:     buyer.party,
	}

	subtotal := decimal.Zero
	for _, idx := range perm[:numItems] {
		tmpl := vendor.items[idx]
		qty := 1 + rng.Intn(10)
		price := decimal.NewFromInt(int64(tmpl.priceMin + rng.Intn(tmpl.priceMax-tmpl.priceMin+1)))
		lineTotal := price.Mul(decimal.NewFromInt(int64(qty)))
		subtotal = subtotal.Add(lineTotal)

		po.Items = append(po.Items, models.POLineItem{
			ID:          uuid.New(),
			SKU:         tmpl.sku,
			Description: tmpl.desc,
			Quantity:    float64(qty),
			UnitPrice:   price,
			LineTotal:   lineTotal,
		})
	}

	taxRate := decimal.NewFromFloat(vendor.taxRate)
	po.Subtotal = subtotal
	po.Tax = subtotal.Mul(taxRate).Round(2)
	po.GrandTotal = po.Subtotal.Add(po.Tax)
	return po
}

func generateGoodsReceipt(rng *rand.Rand, vendor seedVendor, buyer seedBuyer, po models.PurchaseOrder, referencePO string, poDate time.Time) models.GoodsReceipt {
	grn := models.GoodsReceipt{
		ID:          uuid.New(),
		GRNNumber:   "GR-" + po.PONumber[3:],
		ReferencePO: referencePO,
		ReceiptDate: poDate.AddDate(0, 0, 2+rng.Intn(9)).Format("2006-01-02"),
		Vendor:      vendor.party,
		Receiver:    buyer.party,
	}

	isPartial := rng.Float64() < 0.10
	for _, item := range po.Items {
		qty := item.Quantity
		status := "Accepted"
		if isPartial && qty > 1 {
			qty--
			status = "Partial / Damaged"
			isPartial = false
		}
		grn.Items = append(grn.Items, models.GRNLineItem{
			ID:               uuid.New(),
			SKU:              item.SKU,
			Description:      item.Description,
			QuantityReceived: qty,
			InspectionStatus: status,
		})
	}

	return grn
}

func generateInvoice(rng *rand.Rand, vendor seedVendor, buyer seedBuyer, po models.PurchaseOrder, referencePO string, poDate time.Time, chaos string) models.Invoice {
	inv := models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: fmt.Sprintf("INV-%06d", 100000+rng.Intn(900000)),
		ReferencePO:   referencePO,
		InvoiceDate:   poDate.AddDate(0, 0, 5+rng.Intn(11)).Format("2006-01-02"),
		Currency:      po.Currency,
		Vendor:        vendor.party,
		Buyer:         buyer.party,
		TaxRate:       decimal.NewFromFloat(vendor.taxRate),
	}

	subtotal := decimal.Zero
	for _, item := range po.Items {
		price := item.UnitPrice
		if chaos == chaosPriceHike {
			// Inflate by 5-15 percent
			factor := decimal.NewFromFloat(1.05 + rng.Float64()*0.10)
			price = price.Mul(factor).Round(2)
		}
		lineTotal := price.Mul(decimal.NewFromFloat(item.Quantity))
		subtotal = subtotal.Add(lineTotal)

		inv.Items = append(inv.Items, models.InvoiceLineItem{
			ID:          uuid.New(),
			SKU:         item.SKU,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			LineTotal:   lineTotal,
		})
	}

	switch chaos {
	case chaosPriceHike:
		note := "Includes revised service pricing"
		inv.Note = &note
	case chaosGhostPO:
		note := "System Ref Error: Unknown PO"
		inv.Note = &note
	case chaosCurrencyError:
		// Bill in a currency that genuinely differs from the PO's, with
		// converted amounts
		wrongCurrency := buyer.currency
		if wrongCurrency == po.Currency {
			wrongCurrency = "USD"
			if po.Currency == "USD" {
				wrongCurrency = "EUR"
			}
		}
		fxRate := fxRatesToUSD[po.Currency] / fxRatesToUSD[wrongCurrency]
		subtotal = subtotal.Mul(decimal.NewFromFloat(fxRate)).Round(2)
		inv.Currency = wrongCurrency
		note := "Billing Error: Wrong Currency"
		inv.Note = &note
	}

	inv.Subtotal = subtotal
	inv.Tax = subtotal.Mul(inv.TaxRate).Round(2)
	inv.GrandTotal = inv.Subtotal.Add(inv.Tax)

	if buyer.party.Country != vendor.party.Country {
		fxRate := fxRatesToUSD[vendor.currency] / fxRatesToUSD[buyer.currency]
		buyerTotal := inv.GrandTotal.Mul(decimal.NewFromFloat(fxRate)).Round(2)
		inv.BuyerCountry = &buyer.party.Country
		inv.BuyerCurrency = &buyer.currency
		inv.BuyerTotal = &buyerTotal
	}

	return inv
}
