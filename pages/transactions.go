package pages

import (
	"context"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
)

// TransactionCapabilities are the list features the transactions page offers.
const TransactionCapabilities = rwportal.CapPaginate

func (h *Handlers) transactionList(c *fiber.Ctx, svc *api.Service) *rwportal.ResourceList[api.Transaction] {
	return listOf(h, c, ViewTransactions, TransactionCapabilities, svc.Transactions)
}

// TransactionsIndex renders the ledger with the totals. htmx requests
// for another page only get the table back.
func (h *Handlers) TransactionsIndex(c *fiber.Ctx) error {
	svc := h.service(c)
	list := h.transactionList(c, svc)

	page, err := list.Fetch(c.UserContext(), rwportal.ParseListParams(c.Query, TransactionCapabilities))
	if goerrors.Is(err, rwportal.ErrStaleResponse) {
		return stale(c)
	}

	data := fiber.Map{"title": "Transaksi"}
	if err != nil {
		msg, passthrough := pageError(err)
		if passthrough != nil {
			return passthrough
		}
		data["error"] = msg
	} else {
		data["page"] = page
	}

	if !rwportal.IsHTMX(c) && err == nil {
		summary, err := svc.TransactionSummary(c.UserContext())
		if err != nil {
			msg, passthrough := pageError(err)
			if passthrough != nil {
				return passthrough
			}
			data["error"] = msg
		} else {
			data["summary"] = summary
			data["has_summary"] = true
		}
	}

	return h.render(c, fiber.StatusOK, listTemplate(c, "transactions/index", "transactions/_list"), data)
}

func (h *Handlers) TransactionsNew(c *fiber.Ctx) error {
	return h.renderTransactionForm(c, fiber.StatusOK, api.NewTransactionInput(h.now()), nil, "")
}

// TransactionsCreate records the entry. htmx submissions get the ledger
// back, refetched with the params the user last viewed it with; plain
// posts are redirected there.
func (h *Handlers) TransactionsCreate(c *fiber.Ctx) error {
	in := api.TransactionInput{}
	if err := c.BodyParser(&in); err != nil {
		h.Logger.Warn("transaction form parse failed", "error", err)
		return h.renderTransactionForm(c, fiber.StatusBadRequest, in, nil, rwportal.MsgValidation)
	}

	svc := h.service(c)
	list := h.transactionList(c, svc)

	created := false
	page, err := list.Mutate(c.UserContext(), func(ctx context.Context) error {
		_, err := svc.CreateTransaction(ctx, in)
		created = err == nil
		return err
	})
	if err != nil && !created {
		if rwportal.IsUnauthorized(err) {
			return err
		}
		return h.renderTransactionForm(c, rwportal.StatusCode(err), in, rwportal.FieldErrors(err), rwportal.UserMessage(err))
	}

	h.Logger.Info("transaction recorded", "type", in.Type, "category", in.Category)

	location := withQuery("/transactions", list.LastParams())
	if err != nil || !rwportal.IsHTMX(c) {
		return c.Redirect(location, fiber.StatusSeeOther)
	}

	c.Set("HX-Push-Url", location)
	data := fiber.Map{"title": "Transaksi", "page": page, "notice": "Transaksi berhasil ditambahkan"}
	if summary, err := svc.TransactionSummary(c.UserContext()); err == nil {
		data["summary"] = summary
		data["has_summary"] = true
	}
	return h.render(c, fiber.StatusOK, "transactions/index", data)
}

func (h *Handlers) renderTransactionForm(c *fiber.Ctx, status int, in api.TransactionInput, fields map[string]string, message string) error {
	return h.render(c, formStatus(c, status), "transactions/new", fiber.Map{
		"title":  "Tambah Transaksi",
		"record": in,
		"errors": fields,
		"error":  message,
		"types":  []api.TransactionType{api.TransactionIncome, api.TransactionExpense},
	})
}
