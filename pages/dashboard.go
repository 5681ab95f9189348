package pages

import (
	"github.com/gofiber/fiber/v2"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
	"github.com/goliatone/go-rwportal/config"
	"golang.org/x/sync/errgroup"
)

func (h *Handlers) Welcome(c *fiber.Ctx) error {
	return h.render(c, fiber.StatusOK, "welcome", fiber.Map{
		"title": "Selamat Datang",
	})
}

// Dashboard shows the totals and the per month series. The summary and
// the transaction list are fetched concurrently.
func (h *Handlers) Dashboard(c *fiber.Ctx) error {
	svc := h.service(c)

	var (
		summary api.Summary
		txs     rwportal.Page[api.Transaction]
	)

	g, ctx := errgroup.WithContext(c.UserContext())
	g.Go(func() error {
		var err error
		summary, err = svc.TransactionSummary(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = svc.Transactions(ctx, rwportal.ListParams{})
		return err
	})

	data := fiber.Map{"title": "Dashboard"}
	if err := g.Wait(); err != nil {
		msg, passthrough := pageError(err)
		if passthrough != nil {
			return passthrough
		}
		data["error"] = msg
		return h.render(c, fiber.StatusOK, "dashboard", data)
	}

	months := api.MonthlyTotals(txs.Items)
	var peak rwportal.Amount
	for _, m := range months {
		peak = max(peak, m.Income, m.Expense)
	}

	data["summary"] = summary
	data["months"] = months
	data["peak"] = peak
	return h.render(c, fiber.StatusOK, "dashboard", data)
}

// BoardIndex lists the RT/RW officers from the configuration.
func (h *Handlers) BoardIndex(c *fiber.Ctx) error {
	members, n := config.BoardPage(h.Board, c.QueryInt("page", 1))
	pages := config.BoardPages(h.Board)

	return h.render(c, fiber.StatusOK, "pengurus", fiber.Map{
		"title":    "Kepengurusan",
		"members":  members,
		"page":     n,
		"pages":    pages,
		"prev":     n - 1,
		"next":     n + 1,
		"has_prev": n > 1,
		"has_next": n < pages,
	})
}
