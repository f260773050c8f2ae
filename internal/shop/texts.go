package shop

import (
	"fmt"
	"strings"

	"github.com/CaDiBob/simple-telegram-store/core/telegram/format"
	"github.com/CaDiBob/simple-telegram-store/internal/catalog"

	"github.com/shopspring/decimal"
)

// esc shields user-controlled text from Markdown parsing; names come from
// the catalog and Telegram profiles.
func esc(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1)
	if err != nil {
		return s
	}
	return out
}

// Button tokens. Tokens are the only coupling between rendered keyboards and
// the machine's dispatch; unrecognized tokens are ignored on arrival.
const (
	tokenCatalog  = "catalog"
	tokenCart     = "cart"
	tokenFAQ      = "faq"
	tokenCheckout = "checkout"
	tokenAddress  = "address"
	tokenNext     = "next"
	tokenPrev     = "prev"
	tokenBack     = "back"
	tokenHome     = "home"
	tokenAdd      = "add"
	tokenConfirm  = "confirm"
	tokenReenter  = "reenter"
	tokenCorrect  = "correct"

	tokenCategoryPrefix = "cat:"
	tokenProductPrefix  = "prod:"
)

const (
	textMenu          = "Главное меню. Выберите раздел:"
	textFAQ           = "Мы принимаем заказы каждый день с 9:00 до 21:00.\nДоставка по городу — бесплатно при заказе от 1000 ₽.\nПо вопросам пишите в поддержку."
	textCancelled     = "Действие отменено. Наберите /start, чтобы вернуться в меню."
	textHelp          = "Команды:\n/start — главное меню\n/cancel — отменить текущее действие\n/help — эта справка"
	textEmptyCart     = "Ваша корзина пуста."
	textChooseCat     = "Выберите категорию:"
	textChooseProduct = "Выберите товар:"
	textGone          = "Этот пункт больше недоступен."
	textCatalogDown   = "Каталог временно недоступен, попробуйте позже."
	textAskQuantity   = "Введите количество (число от 1 до 99):"
	textBadQuantity   = "Не получилось разобрать количество. Введите число от 1 до 99."
	textAskAddress    = "Введите адрес доставки одним сообщением:"
	textAdded         = "Добавлено в корзину."
	textThanks        = "Спасибо за покупку! Заказ оформлен, мы свяжемся с вами для доставки."
)

func greetingText(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		return "Здравствуйте! Добро пожаловать в наш магазин."
	}
	return fmt.Sprintf("Здравствуйте, %s! Добро пожаловать в наш магазин.", esc(name))
}

func menuKeyboard() [][]Button {
	return [][]Button{
		Row(Button{Label: "Каталог", Token: tokenCatalog}),
		Row(Button{Label: "Корзина", Token: tokenCart}),
		Row(Button{Label: "FAQ", Token: tokenFAQ}),
	}
}

func controlButtons(controls []catalog.Control) []Button {
	row := make([]Button, 0, len(controls))
	for _, c := range controls {
		switch c {
		case catalog.ControlPrev:
			row = append(row, Button{Label: "⬅️", Token: tokenPrev})
		case catalog.ControlNext:
			row = append(row, Button{Label: "➡️", Token: tokenNext})
		case catalog.ControlBack:
			row = append(row, Button{Label: "Назад", Token: tokenBack})
		case catalog.ControlHome:
			row = append(row, Button{Label: "Меню", Token: tokenHome})
		}
	}
	return row
}

func categoryKeyboard(page catalog.Page) [][]Button {
	rows := make([][]Button, 0, len(page.Items)+2)
	for _, cat := range page.Items {
		rows = append(rows, Row(Button{
			Label: cat.Name,
			Token: fmt.Sprintf("%s%d", tokenCategoryPrefix, cat.ID),
		}))
	}
	rows = append(rows, controlButtons(page.Controls))
	rows = append(rows, Row(Button{Label: "Корзина", Token: tokenCart}))
	return rows
}

func productListKeyboard(products []catalog.Product) [][]Button {
	rows := make([][]Button, 0, len(products)+2)
	for _, p := range products {
		rows = append(rows, Row(Button{
			Label: fmt.Sprintf("%s — %s ₽", p.Name, p.Price.StringFixed(2)),
			Token: fmt.Sprintf("%s%d", tokenProductPrefix, p.ID),
		}))
	}
	rows = append(rows,
		Row(Button{Label: "Назад", Token: tokenBack}, Button{Label: "Меню", Token: tokenHome}),
		Row(Button{Label: "Корзина", Token: tokenCart}),
	)
	return rows
}

func productDetailText(p catalog.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", esc(p.Name))
	if p.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(esc(p.Description))
	}
	fmt.Fprintf(&b, "\n\nЦена: %s ₽", p.Price.StringFixed(2))
	b.WriteString("\n\n")
	b.WriteString(textAskQuantity)
	return b.String()
}

func productDetailKeyboard() [][]Button {
	return [][]Button{
		Row(Button{Label: "Назад", Token: tokenBack}, Button{Label: "Меню", Token: tokenHome}),
		Row(Button{Label: "Корзина", Token: tokenCart}),
	}
}

func confirmQuantityText(name string, qty int) string {
	return fmt.Sprintf("Добавить «%s» × %d в корзину?", esc(name), qty)
}

func confirmQuantityKeyboard() [][]Button {
	return [][]Button{
		Row(Button{Label: "Добавить", Token: tokenConfirm}, Button{Label: "Назад", Token: tokenBack}),
	}
}

// cartLine is one resolved cart row for rendering.
type cartLine struct {
	product catalog.Product
	qty     int
}

func cartText(lines []cartLine, total decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("Ваша корзина:\n")
	for _, l := range lines {
		sub := l.product.Price.Mul(decimal.NewFromInt(int64(l.qty)))
		fmt.Fprintf(&b, "\n%s × %d = %s ₽", esc(l.product.Name), l.qty, sub.StringFixed(2))
	}
	fmt.Fprintf(&b, "\n\n*Итого: %s ₽*", total.StringFixed(2))
	b.WriteString("\n\nНажмите на товар, чтобы убрать его из корзины.")
	return b.String()
}

func cartKeyboard(lines []cartLine) [][]Button {
	rows := make([][]Button, 0, len(lines)+2)
	for _, l := range lines {
		rows = append(rows, Row(Button{
			Label: fmt.Sprintf("✖ %s", l.product.Name),
			Token: fmt.Sprintf("%s%d", tokenProductPrefix, l.product.ID),
		}))
	}
	rows = append(rows,
		Row(Button{Label: "Оформить заказ", Token: tokenCheckout}),
		Row(Button{Label: "Адрес доставки", Token: tokenAddress}, Button{Label: "Меню", Token: tokenHome}),
	)
	return rows
}

func emptyCartKeyboard() [][]Button {
	return [][]Button{
		Row(Button{Label: "Каталог", Token: tokenCatalog}, Button{Label: "Меню", Token: tokenHome}),
	}
}

func confirmAddressText(address string) string {
	return fmt.Sprintf("Ваш адрес доставки:\n%s\n\nВсё верно?", esc(address))
}

func confirmAddressKeyboard() [][]Button {
	return [][]Button{
		Row(Button{Label: "Верно", Token: tokenCorrect}, Button{Label: "Ввести заново", Token: tokenReenter}),
	}
}
