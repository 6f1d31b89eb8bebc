// Package e2e provides end-to-end tests over a corpus of support instructions.
package e2e

import (
	"fmt"
	"strings"
)

// Instruction is one corpus entry: a titled help article with a unique signature phrase.
type Instruction struct {
	Key     string
	Title   string
	Content string
	Tags    []string
}

// Markdown renders the instruction as a markdown file body.
func (i Instruction) Markdown() string {
	return "# " + i.Title + "\n\n" + i.Content + "\n"
}

// QueryTestCase is a question and the corpus keys at least one of which must be retrieved.
type QueryTestCase struct {
	Query        string
	ExpectedKeys []string
	Description  string
}

// Corpus holds instructions and query test cases.
type Corpus struct {
	Instructions []Instruction
	TestCases    []QueryTestCase
}

type topic struct {
	title  string
	phrase string
	body   string
	tag    string
}

var topics = []topic{
	{"Расхождения в ЕГАИС", "акт расхождений", "При несовпадении количества оформите акт расхождений в УТМ. Акт расхождений отправляется поставщику до подтверждения накладной.", "ЕГАИС"},
	{"Подтверждение накладной ЕГАИС", "подтверждение накладной", "Откройте входящие документы и выполните подтверждение накладной. После подтверждение накладной остатки обновятся.", "ЕГАИС"},
	{"Перезапуск УТМ", "перезапуск транспортного модуля", "Если УТМ не отвечает, выполните перезапуск транспортного модуля через службы Windows. Перезапуск транспортного модуля занимает около минуты.", "ЕГАИС"},
	{"Замена ключа JaCarta", "ключ JaCarta", "Истёк сертификат на ключ JaCarta. Вставьте новый ключ JaCarta и перезапустите УТМ.", "ЕГАИС"},
	{"Резервное копирование базы", "резервная копия базы", "Каждую ночь создаётся резервная копия базы. Резервная копия базы хранится на сетевом диске семь дней.", "1С"},
	{"Обновление конфигурации 1С", "обновление конфигурации", "Перед обновление конфигурации закройте все сеансы. Обновление конфигурации выполняется через конфигуратор.", "1С"},
	{"Закрытие смены на кассе", "закрытие кассовой смены", "В конце дня выполните закрытие кассовой смены. Закрытие кассовой смены печатает Z-отчёт.", "Касса"},
	{"Открытие смены на кассе", "открытие кассовой смены", "Утром выполните открытие кассовой смены. Открытие кассовой смены требует проверки даты.", "Касса"},
	{"Возврат товара покупателем", "возврат товара", "Для возврат товара откройте чек продажи. Возврат товара проводится по тому же способу оплаты.", "Касса"},
	{"Замена фискального накопителя", "фискальный накопитель", "Когда заполнен фискальный накопитель, касса блокирует продажи. Фискальный накопитель меняет сервисный инженер.", "Касса"},
	{"Печать ценников", "печать ценников", "Выберите товары и нажмите печать ценников. Печать ценников выполняется на термопринтере.", "Магазин"},
	{"Инвентаризация склада", "инвентаризация склада", "Раз в квартал проводится инвентаризация склада. Инвентаризация склада фиксирует излишки и недостачи.", "Склад"},
	{"Приёмка товара", "приёмка товара", "Приёмка товара ведётся по накладной поставщика. Приёмка товара завершается проведением документа.", "Склад"},
	{"Списание просрочки", "списание просроченного товара", "Просроченный товар убирается с полки. Списание просроченного товара оформляется актом.", "Склад"},
	{"Маркировка Честный ЗНАК", "маркировка Честный ЗНАК", "Маркированный товар сканируется по коду. Маркировка Честный ЗНАК требует проверки статуса кода.", "Маркировка"},
	{"Вывод кодов из оборота", "вывод из оборота", "При продаже код отправляется на вывод из оборота. Вывод из оборота подтверждается оператором.", "Маркировка"},
	{"Настройка сканера штрихкодов", "сканер штрихкодов", "Подключите сканер штрихкодов через USB. Сканер штрихкодов настраивается служебным кодом.", "Оборудование"},
	{"Замена ленты в принтере чеков", "чековая лента", "Когда заканчивается чековая лента, откройте крышку принтера. Чековая лента вставляется термослоем наружу.", "Оборудование"},
	{"Подключение весов", "торговые весы", "Торговые весы подключаются к кассе по COM-порту. Торговые весы калибруются раз в год.", "Оборудование"},
	{"Сброс пароля пользователя", "сброс пароля", "Для сброс пароля обратитесь к администратору. Сброс пароля требует подтверждения по телефону.", "Доступ"},
	{"Выдача прав доступа", "права доступа", "Новому сотруднику назначаются права доступа по роли. Права доступа пересматриваются раз в месяц.", "Доступ"},
	{"Настройка VPN", "подключение VPN", "Для удалённой работы нужно подключение VPN. Подключение VPN настраивается клиентом с сертификатом.", "Сеть"},
	{"Проблемы с интернетом", "нет интернета", "Если нет интернета, перезагрузите роутер. Когда нет интернета дольше часа, звоните провайдеру.", "Сеть"},
	{"Настройка электронной почты", "электронная почта", "Электронная почта настраивается в почтовом клиенте. Электронная почта магазина имеет общий ящик.", "Сеть"},
	{"Заказ поставщику", "заказ поставщику", "Автоматический заказ поставщику формируется по остаткам. Заказ поставщику отправляется до полудня.", "Закупки"},
	{"Переоценка товаров", "переоценка товаров", "При смене цен выполняется переоценка товаров. Переоценка товаров требует новых ценников.", "Магазин"},
	{"Отчёт о продажах", "отчёт о продажах", "Ежедневный отчёт о продажах формируется автоматически. Отчёт о продажах отправляется директору.", "Отчёты"},
	{"Отправка отчётности в налоговую", "налоговая отчётность", "Налоговая отчётность отправляется через оператора ЭДО. Налоговая отчётность подписывается ключом директора.", "Отчёты"},
	{"Электронный документооборот", "документооборот ЭДО", "Счета приходят через документооборот ЭДО. Документооборот ЭДО требует подписи ответственного.", "ЭДО"},
	{"Подписание УПД", "подписание УПД", "Входящие документы требуют подписание УПД. Подписание УПД выполняется в личном кабинете.", "ЭДО"},
	{"Бонусная карта покупателя", "бонусная карта", "Покупатель предъявляет бонусная карта на кассе. Бонусная карта начисляет баллы с каждой покупки.", "Лояльность"},
	{"Подарочный сертификат", "подарочный сертификат", "Подарочный сертификат продаётся как услуга. Подарочный сертификат погашается при оплате.", "Лояльность"},
	{"Оплата по QR-коду", "оплата по QR", "Система быстрых платежей поддерживает оплата по QR. Оплата по QR отображается на дисплее покупателя.", "Касса"},
	{"Сбой эквайринга", "банковский терминал", "Если банковский терминал не проводит оплату, выполните сверку итогов. Банковский терминал перезагружается кнопкой.", "Касса"},
	{"Видеонаблюдение", "архив видеонаблюдения", "Архив видеонаблюдения хранится тридцать дней. Архив видеонаблюдения выгружается по запросу службы безопасности.", "Безопасность"},
	{"Пожарная сигнализация", "пожарная сигнализация", "Пожарная сигнализация проверяется ежемесячно. Пожарная сигнализация отключается только подрядчиком.", "Безопасность"},
	{"График смен сотрудников", "график смен", "График смен составляется на месяц вперёд. График смен согласуется с директором.", "Персонал"},
	{"Приём нового сотрудника", "приём сотрудника", "Приём сотрудника начинается с инструктажа. Приём сотрудника оформляется в кадровой программе.", "Персонал"},
	{"Медицинские книжки", "медицинская книжка", "Каждый продавец обязан иметь медицинская книжка. Медицинская книжка продлевается ежегодно.", "Персонал"},
	{"Уборка торгового зала", "уборка торгового зала", "Уборка торгового зала проводится дважды в день. Уборка торгового зала отмечается в журнале.", "Магазин"},
}

// BuildCorpus returns one instruction per topic and one query per instruction built from
// its signature phrase.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for i, t := range topics {
		key := fmt.Sprintf("instr-%03d", i+1)
		c.Instructions = append(c.Instructions, Instruction{
			Key:     key,
			Title:   t.title,
			Content: t.body,
			Tags:    []string{t.tag},
		})
		c.TestCases = append(c.TestCases, QueryTestCase{
			Query:        t.phrase,
			ExpectedKeys: []string{key},
			Description:  fmt.Sprintf("%s_%s", key, strings.ReplaceAll(t.phrase, " ", "_")),
		})
	}
	return c
}

// containsPhrase reports whether the instruction title or content contains phrase, ignoring case.
func containsPhrase(inst Instruction, phrase string) bool {
	p := strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(inst.Title), p) || strings.Contains(strings.ToLower(inst.Content), p)
}
