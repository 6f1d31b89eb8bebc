package generation

import "strings"

// SystemPrompt constrains the model to answer from the supplied context only.
const SystemPrompt = `Ты — помощник по поиску информации в базе знаний инструкций.

ВАЖНЫЕ ПРАВИЛА:
1. Используй ТОЛЬКО информацию из предоставленного контекста
2. Если в контексте нет ответа на вопрос — честно скажи "В базе знаний нет информации по этому вопросу"
3. Не придумывай информацию, которой нет в контексте
4. Отвечай четко, структурированно, по делу
5. Если в контексте есть упоминания изображений в формате [[image: путь]] — обязательно упомяни об этом в ответе, например: "См. изображение для визуального примера" или "На изображении показано..."
6. Изображения из контекста будут автоматически показаны пользователю отдельно, но ты должен упомянуть их наличие в своем ответе
7. Отвечай на русском языке`

// NoInformationAnswer is returned without calling the model when nothing was retrieved.
const NoInformationAnswer = "К сожалению, в базе знаний не найдено релевантной информации по вашему запросу."

// ErrorPrefix tags an answer that carries a generation failure instead of model output.
const ErrorPrefix = "[ОШИБКА] Ошибка при генерации ответа: "

// UserPrompt frames the context and the question for the model.
func UserPrompt(query, context string) string {
	var b strings.Builder
	b.WriteString("КОНТЕКСТ ИЗ БАЗЫ ЗНАНИЙ:\n")
	b.WriteString(context)
	b.WriteString("\n\n---\n\nВОПРОС ПОЛЬЗОВАТЕЛЯ:\n")
	b.WriteString(query)
	b.WriteString("\n\n---\n\nОТВЕТ (используй только информацию из контекста выше):")
	return b.String()
}
